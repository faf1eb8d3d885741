package scoring

import "strings"

type Rail string

const (
	RailSalesPriority  Rail = "sales_priority"
	RailStaffPriority  Rail = "staff_priority"
	RailHardwareSupply Rail = "hardware_supply"
	RailCapital        Rail = "capital"
	RailOpsBuild       Rail = "ops_build"
	RailPriority       Rail = "priority"

	RailBDFollowup  Rail = "bd_followup"
	RailSalesReview Rail = "sales_review"
	RailOpsPool     Rail = "ops_pool"
	RailReview      Rail = "review"

	RailAdvisorBench Rail = "advisor_bench"
	RailTriage       Rail = "triage"
)

// Rule routes a submission to Rail when Match returns true.
type Rule struct {
	Name  string
	Match func(Submission) bool
	Rail  Rail
}

// Band is a score range with its own ordered rules. Rules are tried in order
// and the first match wins; Fallback applies when none match.
type Band struct {
	Name     string
	MinScore int
	Rules    []Rule
	Fallback Rail
}

// Bands is ordered from the highest floor down. Reordering rules inside a band
// changes outcomes for submissions that match more than one rule.
var Bands = []Band{
	{
		Name:     "priority",
		MinScore: 70,
		Rules: []Rule{
			{"sales track", trackIs(TrackSalesGrowth), RailSalesPriority},
			{"ecosystem staff track", trackIs(TrackEcosystemStaff), RailStaffPriority},
			{"hardware track", trackIs(TrackHardwareSupply), RailHardwareSupply},
			{"capital track", trackIs(TrackCapitalSponsor), RailCapital},
			{"operator track or ops lane", anyOf(trackIs(TrackBuilderOperator), laneContains("ops")), RailOpsBuild},
		},
		Fallback: RailPriority,
	},
	{
		Name:     "review",
		MinScore: 45,
		Rules: []Rule{
			{"supply side track", trackIs(TrackHardwareSupply, TrackPartnerVendor, TrackCapitalSponsor), RailBDFollowup},
			{"sales track or interest", anyOf(trackIs(TrackSalesGrowth), interestContains("sales")), RailSalesReview},
			{"operator track or ops lane", anyOf(trackIs(TrackBuilderOperator), laneContains("ops")), RailOpsPool},
		},
		Fallback: RailReview,
	},
	{
		Name:     "triage",
		MinScore: 0,
		Rules: []Rule{
			{"advisor track", trackIs(TrackAdvisorSpecialist), RailAdvisorBench},
		},
		Fallback: RailTriage,
	},
}

// AssignRail picks the band for score and evaluates its rules in order.
func AssignRail(sub Submission, score int) Rail {
	return assignFrom(Bands, sub, score)
}

func assignFrom(bands []Band, sub Submission, score int) Rail {
	for _, band := range bands {
		if score < band.MinScore {
			continue
		}
		return band.route(sub)
	}
	return RailTriage
}

func (b Band) route(sub Submission) Rail {
	for _, rule := range b.Rules {
		if rule.Match(sub) {
			return rule.Rail
		}
	}
	return b.Fallback
}

func trackIs(tracks ...Track) func(Submission) bool {
	return func(s Submission) bool {
		for _, t := range tracks {
			if s.Track == t {
				return true
			}
		}
		return false
	}
}

func laneContains(keyword string) func(Submission) bool {
	return func(s Submission) bool {
		return strings.Contains(strings.ToLower(s.Lane), keyword)
	}
}

func interestContains(keyword string) func(Submission) bool {
	return func(s Submission) bool {
		return strings.Contains(strings.ToLower(s.PositionInterest), keyword)
	}
}

func anyOf(preds ...func(Submission) bool) func(Submission) bool {
	return func(s Submission) bool {
		for _, p := range preds {
			if p(s) {
				return true
			}
		}
		return false
	}
}
