package decision

import (
	"context"
	"errors"
	"testing"

	"recon-orchestrator/internal/tier"
)

type fakeReasoner struct {
	reply string
	err   error
}

func (f *fakeReasoner) Infer(context.Context, string) (string, error) {
	return f.reply, f.err
}

func decide(t *testing.T, reply string) Decision {
	t.Helper()
	g := NewGate(&fakeReasoner{reply: reply}, nil, nil)
	return g.Decide(context.Background(), "map the attack surface", TierContext{Plan: tier.PlanPaid, Target: "example.com"})
}

func TestDecideAutoExecute(t *testing.T) {
	d := decide(t, `{"actions":[
		{"tool":"subfinder","target":"example.com","confidence":0.9},
		{"tool":"httpx","target":"example.com","confidence":0.85}],
		"reasoning":"enumerate then probe","confidence":0.9,"needs_clarification":false}`)

	if !d.AutoExecute {
		t.Errorf("AutoExecute = false, want true (decision %+v)", d)
	}
	if len(d.Actions) != 2 {
		t.Errorf("Actions = %d, want 2", len(d.Actions))
	}
}

func TestDecideGateIsAllOrNothing(t *testing.T) {
	// One action below the per-action floor routes the entire batch to
	// approval, even though the other would qualify alone.
	d := decide(t, `{"actions":[
		{"tool":"subfinder","target":"example.com","confidence":0.6},
		{"tool":"httpx","target":"example.com","confidence":0.9}],
		"reasoning":"","confidence":0.9,"needs_clarification":false}`)

	if d.AutoExecute {
		t.Error("AutoExecute = true for mixed-confidence batch, want false")
	}
	if len(d.Actions) != 2 {
		t.Errorf("Actions = %d, want batch kept intact", len(d.Actions))
	}
}

func TestDecideGateRules(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  bool
	}{
		{
			"unsafe tool blocks batch",
			`{"actions":[{"tool":"nmap","target":"example.com","confidence":0.95}],"confidence":0.95}`,
			false,
		},
		{
			"low overall confidence",
			`{"actions":[{"tool":"whois","target":"example.com","confidence":0.9}],"confidence":0.7}`,
			false,
		},
		{
			"clarification requested",
			`{"actions":[{"tool":"dnsx","target":"example.com","confidence":0.9}],"confidence":0.9,"needs_clarification":true}`,
			false,
		},
		{
			"empty action set never auto-executes",
			`{"actions":[],"confidence":0.95}`,
			false,
		},
		{
			"thresholds are inclusive",
			`{"actions":[{"tool":"dnsx","target":"example.com","confidence":0.7}],"confidence":0.8}`,
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := decide(t, tt.reply); d.AutoExecute != tt.want {
				t.Errorf("AutoExecute = %v, want %v", d.AutoExecute, tt.want)
			}
		})
	}
}

func TestDecideToleratesCodeFences(t *testing.T) {
	d := decide(t, "Here is the plan:\n```json\n"+
		`{"actions":[{"tool":"subfinder","target":"example.com","confidence":0.9}],"confidence":0.9}`+
		"\n```\nLet me know if you need more.")

	if len(d.Actions) != 1 || d.Actions[0].Tool != "subfinder" {
		t.Fatalf("Actions = %+v, want the fenced JSON parsed", d.Actions)
	}
	if !d.AutoExecute {
		t.Error("AutoExecute = false, want true")
	}
}

func TestDecideMalformedOutput(t *testing.T) {
	for _, reply := range []string{
		"I think you should run some scans.",
		`{"actions": [ BROKEN`,
		"",
	} {
		d := decide(t, reply)
		if !d.NeedsClarification {
			t.Errorf("reply %q: NeedsClarification = false, want true", reply)
		}
		if len(d.Actions) != 0 {
			t.Errorf("reply %q: Actions = %+v, want empty", reply, d.Actions)
		}
		if d.AutoExecute {
			t.Errorf("reply %q: AutoExecute = true, want false", reply)
		}
	}
}

func TestDecideReasonerError(t *testing.T) {
	g := NewGate(&fakeReasoner{err: errors.New("upstream 503")}, nil, nil)
	d := g.Decide(context.Background(), "scan everything", TierContext{Plan: tier.PlanFree})

	if !d.NeedsClarification || len(d.Actions) != 0 || d.AutoExecute {
		t.Errorf("degraded decision = %+v, want empty clarification request", d)
	}
}
