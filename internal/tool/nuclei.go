package tool

import (
	"bufio"
	"bytes"
	"encoding/json"

	"recon-orchestrator/internal/tier"
)

// Nuclei runs vulnerability templates. Output is JSON lines with the matched
// template and its severity.
type Nuclei struct{}

type nucleiLine struct {
	TemplateID string `json:"template-id"`
	Info       struct {
		Name     string `json:"name"`
		Severity string `json:"severity"`
	} `json:"info"`
	MatchedAt string `json:"matched-at"`
}

func (n *Nuclei) Descriptor() Descriptor {
	return Descriptor{
		Name:            "nuclei",
		TierRequirement: tier.PlanPaid,
		Category:        "scanning",
		Kind:            KindProcess,
	}
}

func (n *Nuclei) Image() string {
	return "docker.io/projectdiscovery/nuclei:latest"
}

func (n *Nuclei) Command(target string) []string {
	return []string{"nuclei", "-u", target, "-jsonl", "-silent"}
}

func (n *Nuclei) Parse(raw []byte) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var match nucleiLine
		if err := json.Unmarshal(line, &match); err != nil {
			continue
		}
		if match.TemplateID == "" {
			continue
		}
		items = append(items, Item{
			Type:     "vulnerability",
			Value:    match.MatchedAt,
			Detail:   match.Info.Name,
			Severity: match.Info.Severity,
			Meta:     map[string]string{"template": match.TemplateID},
		})
	}
	return items, scanner.Err()
}

func (n *Nuclei) Simulate(target string) []Item {
	return []Item{{
		Type:     "vulnerability",
		Value:    "https://" + target,
		Detail:   "Missing Security Headers",
		Severity: "low",
		Meta:     map[string]string{"template": "http-missing-security-headers"},
	}}
}
