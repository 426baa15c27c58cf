package tool

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strconv"

	"recon-orchestrator/internal/tier"
)

// HTTPX probes targets for live HTTP endpoints. Output is JSON lines.
type HTTPX struct{}

type httpxLine struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Title      string `json:"title"`
	WebServer  string `json:"webserver"`
}

func (h *HTTPX) Descriptor() Descriptor {
	return Descriptor{
		Name:            "httpx",
		TierRequirement: tier.PlanFree,
		Category:        "probing",
		Kind:            KindProcess,
	}
}

func (h *HTTPX) Image() string {
	return "docker.io/projectdiscovery/httpx:latest"
}

func (h *HTTPX) Command(target string) []string {
	return []string{"httpx", "-u", target, "-json", "-silent", "-status-code", "-title", "-web-server"}
}

func (h *HTTPX) Parse(raw []byte) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var probe httpxLine
		if err := json.Unmarshal(line, &probe); err != nil {
			continue // tolerate banner/noise lines
		}
		if probe.URL == "" {
			continue
		}
		items = append(items, Item{
			Type:   "endpoint",
			Value:  probe.URL,
			Detail: probe.Title,
			Meta: map[string]string{
				"status_code": strconv.Itoa(probe.StatusCode),
				"webserver":   probe.WebServer,
			},
		})
	}
	return items, scanner.Err()
}

func (h *HTTPX) Simulate(target string) []Item {
	return []Item{
		{
			Type:   "endpoint",
			Value:  "https://" + target,
			Detail: "Home",
			Meta:   map[string]string{"status_code": "200", "webserver": "nginx"},
		},
		{
			Type:   "endpoint",
			Value:  "https://" + target + "/admin",
			Detail: "Admin Login",
			Meta:   map[string]string{"status_code": "401", "webserver": "nginx"},
		},
	}
}
