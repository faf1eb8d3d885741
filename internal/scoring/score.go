// Package scoring turns a contributor submission into a fit score and a
// triage rail. Everything here is pure: the same submission always produces
// the same score and rail.
package scoring

import (
	"strings"

	"railgate.app/api/models"
)

const DefaultCeiling = 100

const (
	assetsMinLen  = 10
	websiteMinLen = 6
	companyMinLen = 1

	assetsBonus  = 10
	websiteBonus = 6
	companyBonus = 4

	fitPointsPerAnswer = 2
	fitPointsCap       = 16
)

// Submission is the view of a contributor form that scoring and routing read.
type Submission struct {
	Track            Track
	CompPlan         CompPlan
	Authority        Authority
	Lane             string
	PositionInterest string
	Assets           string
	Website          string
	Company          string
	FitAnswers       []string
}

// FromContributor parses the stored string fields into a Submission.
func FromContributor(c *models.Contributor) Submission {
	return Submission{
		Track:            ParseTrack(c.Track),
		CompPlan:         ParseCompPlan(c.CompPlan),
		Authority:        ParseAuthority(c.Authority),
		Lane:             c.Lane,
		PositionInterest: c.PositionInterest,
		Assets:           c.Assets,
		Website:          c.Website,
		Company:          c.Company,
		FitAnswers:       c.FitAnswers.All(),
	}
}

// Scorer sums the weighted contributions and caps the total at Ceiling.
// A Ceiling of zero or less disables the cap.
type Scorer struct {
	Ceiling int
}

func NewScorer(ceiling int) *Scorer {
	return &Scorer{Ceiling: ceiling}
}

func (s *Scorer) Score(sub Submission) int {
	total := TrackWeight(sub.Track) +
		CompBonus(sub.CompPlan) +
		presenceBonus(sub) +
		FitBonus(sub.FitAnswers) +
		AuthorityBonus(sub.Authority)

	if s.Ceiling > 0 && total > s.Ceiling {
		return s.Ceiling
	}
	return total
}

func TrackWeight(t Track) int {
	switch t {
	case TrackEcosystemStaff:
		return 18
	case TrackSalesGrowth, TrackBuilderOperator:
		return 16
	case TrackHardwareSupply:
		return 14
	case TrackPartnerVendor, TrackCapitalSponsor:
		return 12
	case TrackAdvisorSpecialist:
		return 10
	case TrackUnknown:
		return 8
	}
	return 8
}

func CompBonus(p CompPlan) int {
	switch p {
	case CompResidual:
		return 10
	case CompCommission:
		return 8
	case CompEquity:
		return 6
	case CompHourly:
		return 4
	case CompNone:
		return 0
	}
	return 0
}

func AuthorityBonus(a Authority) int {
	switch a {
	case AuthorityOwnerExec:
		return 10
	case AuthorityManagerInfluence:
		return 6
	case AuthorityPartial:
		return 3
	case AuthorityNone:
		return 0
	}
	return 0
}

func presenceBonus(sub Submission) int {
	bonus := 0
	if longerThan(sub.Assets, assetsMinLen) {
		bonus += assetsBonus
	}
	if longerThan(sub.Website, websiteMinLen) {
		bonus += websiteBonus
	}
	if longerThan(sub.Company, companyMinLen) {
		bonus += companyBonus
	}
	return bonus
}

// FitBonus rewards answered prompts, not their content.
func FitBonus(answers []string) int {
	points := 0
	for _, a := range answers {
		if strings.TrimSpace(a) != "" {
			points += fitPointsPerAnswer
		}
	}
	return min(points, fitPointsCap)
}

func longerThan(s string, n int) bool {
	return len(strings.TrimSpace(s)) > n
}

// Evaluate scores a stored contributor and assigns its rail in one step.
func (s *Scorer) Evaluate(c *models.Contributor) (int, Rail) {
	sub := FromContributor(c)
	score := s.Score(sub)
	return score, AssignRail(sub, score)
}
