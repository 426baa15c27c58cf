package tier

import "testing"

func TestLimitsFor(t *testing.T) {
	free := LimitsFor(PlanFree)
	if free.MaxConcurrent != 1 {
		t.Errorf("free MaxConcurrent = %d, want 1", free.MaxConcurrent)
	}
	if free.PriorityBoost != 0 {
		t.Errorf("free PriorityBoost = %d, want 0", free.PriorityBoost)
	}

	paid := LimitsFor(PlanPaid)
	if paid.MaxConcurrent != 5 {
		t.Errorf("paid MaxConcurrent = %d, want 5", paid.MaxConcurrent)
	}
	if paid.PriorityBoost != 100 {
		t.Errorf("paid PriorityBoost = %d, want 100", paid.PriorityBoost)
	}
	if paid.MaxDailyRuns <= free.MaxDailyRuns {
		t.Errorf("paid MaxDailyRuns = %d, want > free (%d)", paid.MaxDailyRuns, free.MaxDailyRuns)
	}
}

func TestLimitsFor_UnknownPlanDegradesToFree(t *testing.T) {
	got := LimitsFor(Plan("enterprise"))
	want := LimitsFor(PlanFree)
	if got.MaxConcurrent != want.MaxConcurrent || got.PriorityBoost != want.PriorityBoost {
		t.Errorf("unknown plan limits = %+v, want free limits %+v", got, want)
	}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{"free", PlanFree},
		{"paid", PlanPaid},
		{"", PlanFree},
		{"premium", PlanFree},
	}
	for _, tt := range tests {
		if got := ParsePlan(tt.in); got != tt.want {
			t.Errorf("ParsePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsToolAllowed(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		plan    Plan
		ownCred bool
		want    bool
	}{
		{"free plan free tool", "subfinder", PlanFree, false, true},
		{"free plan paid tool", "nmap", PlanFree, false, false},
		{"paid plan paid tool", "nmap", PlanPaid, false, true},
		{"free plan shodan", "shodan", PlanFree, false, false},
		{"unregistered tool", "masscan", PlanPaid, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsToolAllowed(tt.tool, tt.plan, tt.ownCred)
			if got.Allowed != tt.want {
				t.Errorf("IsToolAllowed(%q, %q, %v).Allowed = %v, want %v",
					tt.tool, tt.plan, tt.ownCred, got.Allowed, tt.want)
			}
			if !got.Allowed && got.Reason == "" {
				t.Error("denied decision has empty reason")
			}
		})
	}
}

// Own credential always wins, for every plan and every tool.
func TestIsToolAllowed_CredentialBypass(t *testing.T) {
	tools := []string{"subfinder", "httpx", "dnsx", "whois", "nmap", "nuclei", "gitleaks", "shodan", "masscan"}
	for _, plan := range []Plan{PlanFree, PlanPaid} {
		for _, tool := range tools {
			if got := IsToolAllowed(tool, plan, true); !got.Allowed {
				t.Errorf("IsToolAllowed(%q, %q, hasCredential=true).Allowed = false, want true", tool, plan)
			}
		}
	}
}
