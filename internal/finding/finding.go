// Package finding turns normalized tool output into structured security
// findings. Extraction is a per-tool dispatch table: unknown tools yield no
// findings, and an item only becomes a finding when both a title and a
// description can be derived from it.
package finding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"recon-orchestrator/internal/tool"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Finding is one structured security observation, derived deterministically
// from one tool result and immutable once created.
type Finding struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	RunID       string            `json:"run_id"`
	Type        string            `json:"type"`
	Severity    Severity          `json:"severity"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Target      string            `json:"target"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Run identifies the execution a set of findings came from.
type Run struct {
	ID        string
	ProjectID string
	Tool      string
	Target    string
	At        time.Time
}

// rule maps one item to at most one finding. Returning ok=false drops the
// item silently.
type rule func(item tool.Item) (typ string, sev Severity, title, desc string, ok bool)

var rulesByTool = map[string]rule{
	"subfinder": extractSubdomain,
	"dnsx":      extractRecord,
	"httpx":     extractEndpoint,
	"nmap":      extractOpenPort,
	"nuclei":    extractVulnerability,
	"gitleaks":  extractSecret,
	"shodan":    extractShodan,
	// whois output is registration metadata, not a security observation
}

// Extract maps a run's items to findings. Pure given the same Run and items:
// IDs are content-derived, so re-extraction yields an identical list.
func Extract(run Run, items []tool.Item) []Finding {
	r, ok := rulesByTool[run.Tool]
	if !ok {
		return nil
	}

	var findings []Finding
	for i, item := range items {
		typ, sev, title, desc, ok := r(item)
		if !ok || title == "" || desc == "" {
			continue
		}
		findings = append(findings, Finding{
			ID:          deriveID(run.ID, run.Tool, i, item.Value),
			ProjectID:   run.ProjectID,
			RunID:       run.ID,
			Type:        typ,
			Severity:    sev,
			Title:       title,
			Description: desc,
			Target:      run.Target,
			Metadata:    item.Meta,
			CreatedAt:   run.At,
		})
	}
	return findings
}

func deriveID(runID, toolName string, index int, value string) string {
	sum := sha256.Sum256([]byte(runID + "|" + toolName + "|" + strconv.Itoa(index) + "|" + value))
	return hex.EncodeToString(sum[:16])
}

func extractSubdomain(item tool.Item) (string, Severity, string, string, bool) {
	if item.Type != "subdomain" || item.Value == "" {
		return "", "", "", "", false
	}
	return "subdomain_discovered", SeverityLow,
		"Subdomain discovered: " + item.Value,
		"Passive enumeration found subdomain " + item.Value + ", expanding the attack surface.",
		true
}

func extractRecord(item tool.Item) (string, Severity, string, string, bool) {
	if item.Type != "record" || item.Value == "" || item.Detail == "" {
		return "", "", "", "", false
	}
	return "dns_record", SeverityLow,
		"DNS record resolved: " + item.Value,
		"Resolved " + item.Detail + " for " + item.Value + ".",
		true
}

func extractEndpoint(item tool.Item) (string, Severity, string, string, bool) {
	if item.Type != "endpoint" || item.Value == "" {
		return "", "", "", "", false
	}
	code, err := strconv.Atoi(item.Meta["status_code"])
	if err != nil {
		return "", "", "", "", false
	}
	sev := SeverityLow
	if code < 200 || code > 299 {
		sev = SeverityMedium
	}
	return "live_endpoint", sev,
		"Live endpoint: " + item.Value,
		fmt.Sprintf("Endpoint %s responded with HTTP %d.", item.Value, code),
		true
}

func extractOpenPort(item tool.Item) (string, Severity, string, string, bool) {
	if item.Type != "port" || item.Value == "" {
		return "", "", "", "", false
	}
	service := item.Meta["service"]
	if service == "" {
		service = "unknown"
	}
	return "open_port", SeverityMedium,
		"Open port: " + item.Value,
		"Port scan found " + item.Value + " open, service " + service + ".",
		true
}

func extractVulnerability(item tool.Item) (string, Severity, string, string, bool) {
	if item.Type != "vulnerability" || item.Value == "" || item.Detail == "" {
		return "", "", "", "", false
	}
	sev := SeverityLow
	switch strings.ToLower(item.Severity) {
	case "critical":
		sev = SeverityCritical
	case "high":
		sev = SeverityHigh
	case "medium":
		sev = SeverityMedium
	}
	return "vulnerability", sev,
		"Vulnerability: " + item.Detail,
		item.Detail + " matched at " + item.Value + ".",
		true
}

func extractSecret(item tool.Item) (string, Severity, string, string, bool) {
	if item.Type != "secret" || item.Value == "" || item.Detail == "" {
		return "", "", "", "", false
	}
	return "exposed_secret", SeverityHigh,
		"Secret detected: " + item.Detail,
		"A committed secret matching rule " + item.Meta["rule"] + " was found at " + item.Value + ".",
		true
}

func extractShodan(item tool.Item) (string, Severity, string, string, bool) {
	switch item.Type {
	case "port":
		if item.Value == "" {
			return "", "", "", "", false
		}
		return "internet_exposure", SeverityMedium,
			"Internet-exposed port: " + item.Value,
			"Shodan indexes port " + item.Value + " as publicly reachable.",
			true
	case "vulnerability":
		if item.Value == "" {
			return "", "", "", "", false
		}
		return "known_cve", SeverityHigh,
			"Known CVE: " + item.Value,
			"Shodan associates this host with " + item.Value + ".",
			true
	default:
		return "", "", "", "", false
	}
}
