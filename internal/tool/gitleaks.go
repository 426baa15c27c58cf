package tool

import (
	"encoding/json"
	"fmt"

	"recon-orchestrator/internal/tier"
)

// Gitleaks scans a repository for committed secrets. Output is a JSON array
// of leak records.
type Gitleaks struct{}

type gitleaksRecord struct {
	RuleID      string `json:"RuleID"`
	Description string `json:"Description"`
	File        string `json:"File"`
	StartLine   int    `json:"StartLine"`
	Commit      string `json:"Commit"`
}

func (g *Gitleaks) Descriptor() Descriptor {
	return Descriptor{
		Name:            "gitleaks",
		TierRequirement: tier.PlanPaid,
		Category:        "secrets",
		Kind:            KindProcess,
	}
}

func (g *Gitleaks) Image() string {
	return "docker.io/zricethezav/gitleaks:latest"
}

func (g *Gitleaks) Command(target string) []string {
	return []string{"gitleaks", "detect", "--source", target, "--report-format", "json", "--report-path", "/dev/stdout", "--exit-code", "0"}
}

func (g *Gitleaks) Parse(raw []byte) ([]Item, error) {
	var records []gitleaksRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parsing gitleaks report: %w", err)
	}
	items := make([]Item, 0, len(records))
	for _, rec := range records {
		items = append(items, Item{
			Type:   "secret",
			Value:  fmt.Sprintf("%s:%d", rec.File, rec.StartLine),
			Detail: rec.Description,
			Meta: map[string]string{
				"rule":   rec.RuleID,
				"commit": rec.Commit,
			},
		})
	}
	return items, nil
}

func (g *Gitleaks) Simulate(target string) []Item {
	return []Item{{
		Type:   "secret",
		Value:  "config/settings.py:42",
		Detail: "Generic API Key",
		Meta: map[string]string{
			"rule":   "generic-api-key",
			"source": target,
		},
	}}
}
