package risk

import (
	"math/rand"
	"reflect"
	"testing"

	"recon-orchestrator/internal/finding"
)

func f(id, typ string, sev finding.Severity, title, desc string) finding.Finding {
	return finding.Finding{
		ID:          id,
		Type:        typ,
		Severity:    sev,
		Title:       title,
		Description: desc,
	}
}

func sampleFindings() []finding.Finding {
	return []finding.Finding{
		f("1", "exposed_secret", finding.SeverityHigh, "Secret detected: AWS Access Key", "A committed secret was found."),
		f("2", "open_port", finding.SeverityMedium, "Open port: example.com:22", "Port scan found 22 open, service ssh."),
		f("3", "subdomain_discovered", finding.SeverityLow, "Subdomain discovered: admin.example.com", "Passive enumeration found subdomain admin.example.com."),
		f("4", "vulnerability", finding.SeverityCritical, "Vulnerability: SQL Injection", "SQL Injection matched at https://example.com/login."),
	}
}

func TestAssessIsDeterministic(t *testing.T) {
	findings := sampleFindings()
	first := Assess(findings)
	second := Assess(findings)
	if !reflect.DeepEqual(first, second) {
		t.Error("Assess() not deterministic on identical input")
	}
}

func TestAssessIsOrderIndependent(t *testing.T) {
	findings := sampleFindings()
	want := Assess(findings)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]finding.Finding, len(findings))
		copy(shuffled, findings)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		if got := Assess(shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("Assess() differs under permutation %d", i)
		}
	}
}

func TestAssessEmptyFindings(t *testing.T) {
	got := Assess(nil)
	if got.OverallScore != 0 {
		t.Errorf("OverallScore = %v, want 0", got.OverallScore)
	}
	if got.Level != LevelLow {
		t.Errorf("Level = %q, want low", got.Level)
	}
	if len(got.Threats) != 0 {
		t.Errorf("Threats = %v, want empty", got.Threats)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   finding.Finding
		want ThreatType
	}{
		{"secret by type", f("1", "exposed_secret", finding.SeverityHigh, "t", "d"), ThreatCredentialLeak},
		{"cve by type", f("2", "known_cve", finding.SeverityHigh, "t", "d"), ThreatKnownVuln},
		{"port by type", f("3", "open_port", finding.SeverityMedium, "t", "d"), ThreatServiceExposure},
		{"subdomain by type", f("4", "subdomain_discovered", finding.SeverityLow, "t", "d"), ThreatAttackSurface},
		{"keyword password", f("5", "custom", finding.SeverityLow, "Leaked password in config", "d"), ThreatCredentialLeak},
		{"keyword cve", f("6", "custom", finding.SeverityLow, "CVE-2024-1234 applies", "d"), ThreatKnownVuln},
		{"keyword exposed", f("7", "custom", finding.SeverityLow, "Service exposed to internet", "d"), ThreatServiceExposure},
		{"fallback", f("8", "custom", finding.SeverityLow, "Banner observed", "d"), ThreatInfoDisclosure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.in); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSeverityMultiplierApplied(t *testing.T) {
	lowOnly := Assess([]finding.Finding{
		f("1", "open_port", finding.SeverityLow, "Open port: x:80", "Port scan found 80 open."),
	})
	criticalPresent := Assess([]finding.Finding{
		f("1", "open_port", finding.SeverityCritical, "Open port: x:80", "Port scan found 80 open."),
	})
	if criticalPresent.Threats[0].Score <= lowOnly.Threats[0].Score {
		t.Errorf("critical threat score %v not above low-only score %v",
			criticalPresent.Threats[0].Score, lowOnly.Threats[0].Score)
	}
}

func TestRiskFactorBonusCountsOnce(t *testing.T) {
	// Two findings in the same threat bucket both mention "admin"; the
	// bonus must apply once, not per finding.
	one := Assess([]finding.Finding{
		f("1", "subdomain_discovered", finding.SeverityLow, "Subdomain discovered: admin.example.com", "d"),
	})
	two := Assess([]finding.Finding{
		f("1", "subdomain_discovered", finding.SeverityLow, "Subdomain discovered: admin.example.com", "d"),
		f("2", "subdomain_discovered", finding.SeverityLow, "Subdomain discovered: admin2.example.com", "d"),
	})
	if one.Threats[0].Score != two.Threats[0].Score {
		t.Errorf("admin bonus applied per finding: %v vs %v", one.Threats[0].Score, two.Threats[0].Score)
	}
	if two.Threats[0].Confidence <= one.Threats[0].Confidence {
		t.Error("confidence should grow with finding count")
	}
}

func TestScoresClamped(t *testing.T) {
	// Stack every factor onto the highest base with a critical multiplier.
	got := Assess([]finding.Finding{
		f("1", "exposed_secret", finding.SeverityCritical,
			"Secret detected: admin database login payment internal api key",
			"Credential for the admin database login and payment api on staging."),
	})
	if got.Threats[0].Score > 100 {
		t.Errorf("threat score %v exceeds 100", got.Threats[0].Score)
	}
	if got.OverallScore > 100 {
		t.Errorf("overall score %v exceeds 100", got.OverallScore)
	}
}

func TestLevelThresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{85, LevelCritical},
		{80, LevelCritical},
		{79.9, LevelHigh},
		{60, LevelHigh},
		{59.9, LevelMedium},
		{40, LevelMedium},
		{39.9, LevelLow},
		{0, LevelLow},
	}
	for _, tt := range tests {
		if got := levelFor(tt.score); got != tt.want {
			t.Errorf("levelFor(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
