package scoring

import "strings"

type Track int

const (
	TrackUnknown Track = iota
	TrackEcosystemStaff
	TrackSalesGrowth
	TrackBuilderOperator
	TrackPartnerVendor
	TrackHardwareSupply
	TrackCapitalSponsor
	TrackAdvisorSpecialist
)

var trackNames = map[string]Track{
	"ecosystem_staff":    TrackEcosystemStaff,
	"sales_growth":       TrackSalesGrowth,
	"builder_operator":   TrackBuilderOperator,
	"partner_vendor":     TrackPartnerVendor,
	"hardware_supply":    TrackHardwareSupply,
	"capital_sponsor":    TrackCapitalSponsor,
	"advisor_specialist": TrackAdvisorSpecialist,
}

// ParseTrack never fails; anything unrecognized is TrackUnknown.
func ParseTrack(s string) Track {
	return trackNames[normalize(s)]
}

func (t Track) String() string {
	switch t {
	case TrackEcosystemStaff:
		return "ecosystem_staff"
	case TrackSalesGrowth:
		return "sales_growth"
	case TrackBuilderOperator:
		return "builder_operator"
	case TrackPartnerVendor:
		return "partner_vendor"
	case TrackHardwareSupply:
		return "hardware_supply"
	case TrackCapitalSponsor:
		return "capital_sponsor"
	case TrackAdvisorSpecialist:
		return "advisor_specialist"
	default:
		return "unknown"
	}
}

type CompPlan int

const (
	CompNone CompPlan = iota
	CompResidual
	CompCommission
	CompHourly
	CompEquity
)

// compKeywords is checked in order; the first keyword found decides the plan.
var compKeywords = []struct {
	keyword string
	plan    CompPlan
}{
	{"residual", CompResidual},
	{"commission", CompCommission},
	{"hourly", CompHourly},
	{"equity", CompEquity},
	{"revshare", CompEquity},
}

func ParseCompPlan(s string) CompPlan {
	text := strings.ToLower(s)
	for _, kw := range compKeywords {
		if strings.Contains(text, kw.keyword) {
			return kw.plan
		}
	}
	return CompNone
}

type Authority int

const (
	AuthorityNone Authority = iota
	AuthorityPartial
	AuthorityManagerInfluence
	AuthorityOwnerExec
)

func ParseAuthority(s string) Authority {
	switch normalize(s) {
	case "owner_exec":
		return AuthorityOwnerExec
	case "manager_influence":
		return AuthorityManagerInfluence
	case "partial":
		return AuthorityPartial
	default:
		return AuthorityNone
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
