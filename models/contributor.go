package models

import "time"

const (
	ContributorNew      = "new"
	ContributorReviewed = "reviewed"
	ContributorApproved = "approved"
	ContributorRejected = "rejected"
)

// ValidContributorStatus reports whether s is one of the workflow labels an
// admin may set.
func ValidContributorStatus(s string) bool {
	switch s {
	case ContributorNew, ContributorReviewed, ContributorApproved, ContributorRejected:
		return true
	}
	return false
}

// FitAnswers holds the optional qualification prompts. They only count toward
// completeness, never content.
type FitAnswers struct {
	Problem     string `json:"fit_problem"`
	Customers   string `json:"fit_customers"`
	Pipeline    string `json:"fit_pipeline"`
	Timeline    string `json:"fit_timeline"`
	Budget      string `json:"fit_budget"`
	Proof       string `json:"fit_proof"`
	Team        string `json:"fit_team"`
	Constraints string `json:"fit_constraints"`
}

func (f FitAnswers) All() []string {
	return []string{
		f.Problem, f.Customers, f.Pipeline, f.Timeline,
		f.Budget, f.Proof, f.Team, f.Constraints,
	}
}

type Contributor struct {
	ID string `json:"id"`

	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Website string `json:"website"`

	Track            string `json:"track"`
	PrimaryRole      string `json:"primary_role"`
	Region           string `json:"region"`
	CompPlan         string `json:"comp_plan"`
	Alignment        string `json:"alignment"`
	Authority        string `json:"authority"`
	Lane             string `json:"lane"`
	PositionInterest string `json:"position_interest"`

	Assets   string `json:"assets"`
	Capacity string `json:"capacity"`
	Message  string `json:"message"`

	FitAnswers

	Score     int       `json:"score"`
	Rail      string    `json:"rail"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
