package tier

import (
	"github.com/rs/zerolog/log"
)

// Plan is a billing tier. Unrecognized plans degrade to free.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPaid Plan = "paid"
)

// TTLClass selects which configured cache TTL applies to a plan's results.
type TTLClass string

const (
	TTLStandard TTLClass = "standard"
	TTLExtended TTLClass = "extended"
)

// Limits are the resource ceilings for a plan.
type Limits struct {
	MaxConcurrent int
	MaxDailyRuns  int
	AllowedTools  []string
	PriorityBoost int
	CacheTTLClass TTLClass
}

var planLimits = map[Plan]Limits{
	PlanFree: {
		MaxConcurrent: 1,
		MaxDailyRuns:  25,
		AllowedTools:  []string{"subfinder", "httpx", "dnsx", "whois"},
		PriorityBoost: 0,
		CacheTTLClass: TTLStandard,
	},
	PlanPaid: {
		MaxConcurrent: 5,
		MaxDailyRuns:  500,
		AllowedTools:  []string{"subfinder", "httpx", "dnsx", "whois", "nmap", "nuclei", "gitleaks", "shodan"},
		PriorityBoost: 100,
		CacheTTLClass: TTLExtended,
	},
}

// ParsePlan maps a raw plan string to a Plan, falling back to free.
func ParsePlan(s string) Plan {
	switch Plan(s) {
	case PlanFree, PlanPaid:
		return Plan(s)
	default:
		if s != "" {
			log.Warn().Str("plan", s).Msg("unrecognized plan, treating as free")
		}
		return PlanFree
	}
}

// LimitsFor returns the limits for a plan. Total over the plan enum;
// unknown plans get the free tier.
func LimitsFor(plan Plan) Limits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	log.Warn().Str("plan", string(plan)).Msg("unrecognized plan, applying free limits")
	return planLimits[PlanFree]
}

// ToolDecision is the outcome of an allow-list check.
type ToolDecision struct {
	Allowed bool
	Reason  string
}

// IsToolAllowed reports whether a plan may run a tool. A requester who
// supplies their own credential for the tool is always allowed, regardless
// of the plan allow-list (bring-your-own-key).
func IsToolAllowed(toolName string, plan Plan, hasOwnCredential bool) ToolDecision {
	if hasOwnCredential {
		return ToolDecision{Allowed: true, Reason: "own credential supplied"}
	}
	for _, t := range LimitsFor(plan).AllowedTools {
		if t == toolName {
			return ToolDecision{Allowed: true, Reason: "included in plan"}
		}
	}
	return ToolDecision{
		Allowed: false,
		Reason:  "tool requires upgrade or own credential",
	}
}
