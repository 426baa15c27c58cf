// Package risk folds findings into threat predictions and an overall risk
// score. Assessments are pure functions of the finding set: recomputing on
// the same findings always yields the same result, regardless of input order,
// and nothing here is persisted as a source of truth.
package risk

import (
	"regexp"
	"sort"
	"strings"

	"recon-orchestrator/internal/finding"
)

// ThreatType buckets findings into classes of threat.
type ThreatType string

const (
	ThreatCredentialLeak    ThreatType = "credential_leak"
	ThreatKnownVuln         ThreatType = "known_vulnerability"
	ThreatServiceExposure   ThreatType = "service_exposure"
	ThreatAttackSurface     ThreatType = "attack_surface_expansion"
	ThreatInfoDisclosure    ThreatType = "information_disclosure"
)

// Level is the overall risk classification.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Threat is one scored threat prediction.
type Threat struct {
	Type        ThreatType       `json:"type"`
	Score       float64          `json:"score"`
	Confidence  float64          `json:"confidence"`
	Findings    int              `json:"findings"`
	MaxSeverity finding.Severity `json:"max_severity"`
}

// Assessment is the aggregate risk picture for a finding set.
type Assessment struct {
	OverallScore float64  `json:"overall_score"`
	Level        Level    `json:"level"`
	Threats      []Threat `json:"threats"`
	FindingCount int      `json:"finding_count"`
}

var baseScores = map[ThreatType]float64{
	ThreatCredentialLeak:  70,
	ThreatKnownVuln:       65,
	ThreatServiceExposure: 50,
	ThreatAttackSurface:   35,
	ThreatInfoDisclosure:  30,
}

// riskFactors are additive bonuses matched against a finding's text and
// metadata. Each factor counts once per threat type, so scoring stays
// order-independent.
var riskFactors = []struct {
	name  string
	rx    *regexp.Regexp
	bonus float64
}{
	{"admin_surface", regexp.MustCompile(`(?i)\badmin\b`), 10},
	{"database", regexp.MustCompile(`(?i)\b(database|sql|postgres|mysql|mongo)\b`), 10},
	{"auth_surface", regexp.MustCompile(`(?i)\b(login|auth|sso)\b`), 8},
	{"payment", regexp.MustCompile(`(?i)\b(payment|billing|card)\b`), 12},
	{"internal_env", regexp.MustCompile(`(?i)\b(internal|staging|dev)\b`), 5},
	{"api_surface", regexp.MustCompile(`(?i)\bapi\b`), 5},
}

var typeToThreat = map[string]ThreatType{
	"exposed_secret":       ThreatCredentialLeak,
	"vulnerability":        ThreatKnownVuln,
	"known_cve":            ThreatKnownVuln,
	"open_port":            ThreatServiceExposure,
	"internet_exposure":    ThreatServiceExposure,
	"live_endpoint":        ThreatServiceExposure,
	"subdomain_discovered": ThreatAttackSurface,
	"dns_record":           ThreatAttackSurface,
}

// Classify buckets a single finding into a threat type, first by its declared
// type and then by keyword rules on its text.
func Classify(f finding.Finding) ThreatType {
	if t, ok := typeToThreat[f.Type]; ok {
		return t
	}
	text := findingText(f)
	switch {
	case regexp.MustCompile(`(?i)(secret|credential|password|api.?key|token)`).MatchString(text):
		return ThreatCredentialLeak
	case regexp.MustCompile(`(?i)(cve-|vulnerab|exploit|injection)`).MatchString(text):
		return ThreatKnownVuln
	case regexp.MustCompile(`(?i)(open port|exposed|reachable|listening)`).MatchString(text):
		return ThreatServiceExposure
	default:
		return ThreatInfoDisclosure
	}
}

// Assess computes the full risk picture for a finding set.
func Assess(findings []finding.Finding) Assessment {
	if len(findings) == 0 {
		return Assessment{Level: LevelLow, Threats: []Threat{}}
	}

	type bucket struct {
		findings []finding.Finding
		factors  map[string]float64
	}
	buckets := make(map[ThreatType]*bucket)

	for _, f := range findings {
		tt := Classify(f)
		b, ok := buckets[tt]
		if !ok {
			b = &bucket{factors: make(map[string]float64)}
			buckets[tt] = b
		}
		b.findings = append(b.findings, f)

		text := findingText(f)
		for _, factor := range riskFactors {
			if factor.rx.MatchString(text) {
				b.factors[factor.name] = factor.bonus
			}
		}
	}

	threats := make([]Threat, 0, len(buckets))
	for tt, b := range buckets {
		score := baseScores[tt]
		for _, bonus := range b.factors {
			score += bonus
		}

		maxSev := maxSeverity(b.findings)
		score *= severityMultiplier(maxSev)
		score = clamp(score, 0, 100)

		confidence := 0.5 + 0.1*float64(len(b.findings))
		if confidence > 0.95 {
			confidence = 0.95
		}

		threats = append(threats, Threat{
			Type:        tt,
			Score:       score,
			Confidence:  confidence,
			Findings:    len(b.findings),
			MaxSeverity: maxSev,
		})
	}

	// Deterministic output order regardless of input order.
	sort.Slice(threats, func(i, j int) bool { return threats[i].Type < threats[j].Type })

	var weightedSum, weightSum float64
	for _, th := range threats {
		w := th.Confidence * severityWeight(th.MaxSeverity)
		weightedSum += th.Score * w
		weightSum += w
	}

	overall := clamp(weightedSum/weightSum, 0, 100)

	return Assessment{
		OverallScore: overall,
		Level:        levelFor(overall),
		Threats:      threats,
		FindingCount: len(findings),
	}
}

func findingText(f finding.Finding) string {
	var sb strings.Builder
	sb.WriteString(f.Title)
	sb.WriteByte(' ')
	sb.WriteString(f.Description)
	// Metadata keys are iterated only for values; set-based factor matching
	// keeps map iteration order irrelevant.
	for _, v := range f.Metadata {
		sb.WriteByte(' ')
		sb.WriteString(v)
	}
	return sb.String()
}

func maxSeverity(findings []finding.Finding) finding.Severity {
	max := finding.SeverityLow
	for _, f := range findings {
		if severityWeight(f.Severity) > severityWeight(max) {
			max = f.Severity
		}
	}
	return max
}

func severityMultiplier(sev finding.Severity) float64 {
	switch sev {
	case finding.SeverityCritical:
		return 1.3
	case finding.SeverityHigh:
		return 1.2
	case finding.SeverityMedium:
		return 1.1
	default:
		return 1.0
	}
}

func severityWeight(sev finding.Severity) float64 {
	switch sev {
	case finding.SeverityCritical:
		return 3.0
	case finding.SeverityHigh:
		return 2.0
	case finding.SeverityMedium:
		return 1.5
	default:
		return 1.0
	}
}

func levelFor(score float64) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
