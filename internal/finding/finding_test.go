package finding

import (
	"reflect"
	"testing"
	"time"

	"recon-orchestrator/internal/tool"
)

func testRun(toolName string) Run {
	return Run{
		ID:        "run-1",
		ProjectID: "proj-1",
		Tool:      toolName,
		Target:    "example.com",
		At:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	items := []tool.Item{
		{Type: "subdomain", Value: "api.example.com"},
		{Type: "subdomain", Value: "dev.example.com"},
	}
	run := testRun("subfinder")

	first := Extract(run, items)
	second := Extract(run, items)

	if len(first) != 2 {
		t.Fatalf("Extract() returned %d findings, want 2", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Extract() not idempotent: two runs on the same input differ")
	}
	if first[0].ID == first[1].ID {
		t.Error("distinct items produced the same finding ID")
	}
}

func TestExtractUnknownToolYieldsNothing(t *testing.T) {
	items := []tool.Item{{Type: "subdomain", Value: "x.example.com"}}
	if got := Extract(testRun("masscan"), items); got != nil {
		t.Errorf("Extract() for unknown tool = %v, want nil", got)
	}
	// whois is registered but intentionally has no rule
	if got := Extract(testRun("whois"), items); got != nil {
		t.Errorf("Extract() for whois = %v, want nil", got)
	}
}

func TestExtractDropsPartialItems(t *testing.T) {
	items := []tool.Item{
		{Type: "subdomain", Value: ""},                  // no value, no title derivable
		{Type: "endpoint", Value: "https://x.example"},  // wrong type for subfinder
		{Type: "subdomain", Value: "ok.example.com"},
	}
	got := Extract(testRun("subfinder"), items)
	if len(got) != 1 {
		t.Fatalf("Extract() returned %d findings, want 1", len(got))
	}
	if got[0].Title != "Subdomain discovered: ok.example.com" {
		t.Errorf("Title = %q", got[0].Title)
	}
}

func TestExtractEndpointSeverity(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   Severity
	}{
		{"2xx is low", "200", SeverityLow},
		{"403 is medium", "403", SeverityMedium},
		{"500 is medium", "500", SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := []tool.Item{{
				Type:  "endpoint",
				Value: "https://example.com/x",
				Meta:  map[string]string{"status_code": tt.status},
			}}
			got := Extract(testRun("httpx"), items)
			if len(got) != 1 {
				t.Fatalf("Extract() returned %d findings, want 1", len(got))
			}
			if got[0].Severity != tt.want {
				t.Errorf("Severity = %q, want %q", got[0].Severity, tt.want)
			}
		})
	}
}

func TestExtractEndpointWithoutStatusDropped(t *testing.T) {
	items := []tool.Item{{Type: "endpoint", Value: "https://example.com"}}
	if got := Extract(testRun("httpx"), items); len(got) != 0 {
		t.Errorf("Extract() = %d findings for ambiguous endpoint, want 0", len(got))
	}
}

func TestExtractNucleiSeverityMapping(t *testing.T) {
	tests := []struct {
		hint string
		want Severity
	}{
		{"critical", SeverityCritical},
		{"high", SeverityHigh},
		{"medium", SeverityMedium},
		{"info", SeverityLow},
		{"", SeverityLow},
	}
	for _, tt := range tests {
		items := []tool.Item{{
			Type:     "vulnerability",
			Value:    "https://example.com",
			Detail:   "Something",
			Severity: tt.hint,
		}}
		got := Extract(testRun("nuclei"), items)
		if len(got) != 1 {
			t.Fatalf("severity %q: got %d findings, want 1", tt.hint, len(got))
		}
		if got[0].Severity != tt.want {
			t.Errorf("severity hint %q mapped to %q, want %q", tt.hint, got[0].Severity, tt.want)
		}
	}
}

func TestExtractSecretIsHigh(t *testing.T) {
	items := []tool.Item{{
		Type:   "secret",
		Value:  "main.tf:7",
		Detail: "AWS Access Key",
		Meta:   map[string]string{"rule": "aws-access-key"},
	}}
	got := Extract(testRun("gitleaks"), items)
	if len(got) != 1 {
		t.Fatalf("Extract() returned %d findings, want 1", len(got))
	}
	if got[0].Severity != SeverityHigh {
		t.Errorf("Severity = %q, want high", got[0].Severity)
	}
	if got[0].RunID != "run-1" || got[0].ProjectID != "proj-1" {
		t.Errorf("finding run/project = %q/%q", got[0].RunID, got[0].ProjectID)
	}
}
