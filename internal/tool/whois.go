package tool

import (
	"bufio"
	"bytes"
	"strings"

	"recon-orchestrator/internal/tier"
)

// Whois looks up domain registration data. Output is the raw registry text;
// a few well-known keys are lifted into metadata.
type Whois struct{}

var whoisKeys = map[string]string{
	"registrar":            "registrar",
	"creation date":        "created",
	"registry expiry date": "expires",
	"name server":          "nameserver",
}

func (w *Whois) Descriptor() Descriptor {
	return Descriptor{
		Name:            "whois",
		TierRequirement: tier.PlanFree,
		Category:        "osint",
		Kind:            KindProcess,
	}
}

func (w *Whois) Image() string {
	return "docker.io/alpine:latest"
}

func (w *Whois) Command(target string) []string {
	return []string{"whois", target}
}

func (w *Whois) Parse(raw []byte) ([]Item, error) {
	meta := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if mapped, ok := whoisKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
			if _, exists := meta[mapped]; !exists {
				meta[mapped] = strings.TrimSpace(value)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return []Item{{
		Type:   "record",
		Value:  meta["registrar"],
		Detail: "domain registration record",
		Meta:   meta,
	}}, nil
}

func (w *Whois) Simulate(target string) []Item {
	return []Item{{
		Type:   "record",
		Value:  "Example Registrar, Inc.",
		Detail: "domain registration record",
		Meta: map[string]string{
			"registrar": "Example Registrar, Inc.",
			"created":   "2015-01-01T00:00:00Z",
			"expires":   "2030-01-01T00:00:00Z",
			"domain":    target,
		},
	}}
}
