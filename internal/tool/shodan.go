package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"recon-orchestrator/internal/tier"
)

// Shodan queries the Shodan host API. It is credential-required and
// rate-limited, so real responses are cached on the longer TTL.
type Shodan struct {
	// BaseURL overrides the API endpoint in tests.
	BaseURL string
}

type shodanHost struct {
	Ports []int    `json:"ports"`
	Vulns []string `json:"vulns"`
	Org   string   `json:"org"`
	OS    string   `json:"os"`
}

func (s *Shodan) Descriptor() Descriptor {
	return Descriptor{
		Name:               "shodan",
		TierRequirement:    tier.PlanPaid,
		RequiresCredential: true,
		RateLimited:        true,
		Category:           "osint",
		Kind:               KindAPI,
	}
}

func (s *Shodan) Image() string { return "" }

func (s *Shodan) Command(string) []string { return nil }

func (s *Shodan) Call(ctx context.Context, client *http.Client, target, credential string) ([]byte, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://api.shodan.io"
	}
	u := fmt.Sprintf("%s/shodan/host/%s?key=%s", base, url.PathEscape(target), url.QueryEscape(credential))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shodan request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shodan returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func (s *Shodan) Parse(raw []byte) ([]Item, error) {
	var host shodanHost
	if err := json.Unmarshal(raw, &host); err != nil {
		return nil, fmt.Errorf("parsing shodan response: %w", err)
	}
	var items []Item
	for _, port := range host.Ports {
		items = append(items, Item{
			Type:   "port",
			Value:  strconv.Itoa(port),
			Detail: "indexed by shodan",
			Meta:   map[string]string{"port": strconv.Itoa(port), "org": host.Org},
		})
	}
	for _, vuln := range host.Vulns {
		items = append(items, Item{
			Type:     "vulnerability",
			Value:    vuln,
			Detail:   "known CVE indexed by shodan",
			Severity: "high",
			Meta:     map[string]string{"cve": vuln},
		})
	}
	return items, nil
}

func (s *Shodan) Simulate(target string) []Item {
	return []Item{
		{
			Type:   "port",
			Value:  "443",
			Detail: "indexed by shodan",
			Meta:   map[string]string{"port": "443", "org": "Example Hosting", "target": target},
		},
		{
			Type:   "port",
			Value:  "80",
			Detail: "indexed by shodan",
			Meta:   map[string]string{"port": "80", "org": "Example Hosting", "target": target},
		},
	}
}
