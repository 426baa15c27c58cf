package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"recon-orchestrator/internal/decision"
	"recon-orchestrator/internal/executor"
	"recon-orchestrator/internal/finding"
	"recon-orchestrator/internal/queue"
	"recon-orchestrator/internal/risk"
	"recon-orchestrator/internal/tool"
)

// mockExecutor implements queue.Executor for handler tests.
type mockExecutor struct {
	block chan struct{}
}

func (m *mockExecutor) Execute(_ context.Context, req executor.Request) (*executor.Result, error) {
	if m.block != nil {
		<-m.block
	}
	return &executor.Result{RunID: req.RunID, Tool: req.Tool, Origin: executor.OriginReal}, nil
}

type mockReasoner struct {
	reply string
}

func (m *mockReasoner) Infer(context.Context, string) (string, error) {
	return m.reply, nil
}

func newTestHandlers(exec queue.Executor, reply string) (*Handlers, *queue.Queue) {
	q := queue.New(exec, queue.Options{Ceiling: 1})
	gate := decision.NewGate(&mockReasoner{reply: reply}, nil, nil)
	return NewHandlers(q, gate, tool.NewRegistry(), nil), q
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleEnqueue(t *testing.T) {
	h, q := newTestHandlers(&mockExecutor{}, "")
	q.Start(context.Background())
	defer q.Stop(context.Background())

	rec := postJSON(t, h.HandleEnqueue, "/executions", EnqueueRequest{
		ProjectID: "p1", Tool: "subfinder", Target: "example.com", Plan: "free",
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp EnqueueResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID == "" || resp.Status != "queued" {
		t.Errorf("response = %+v, want queued with id", resp)
	}

	// The execution eventually lands in a terminal state readable via GET.
	deadline := time.Now().Add(5 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/executions/"+resp.ID, nil)
		req.SetPathValue("id", resp.ID)
		getRec := httptest.NewRecorder()
		h.HandleGetExecution(getRec, req)

		if getRec.Code != http.StatusOK {
			t.Fatalf("GET status = %d: %s", getRec.Code, getRec.Body.String())
		}
		var ex queue.Execution
		if err := json.NewDecoder(getRec.Body).Decode(&ex); err != nil {
			t.Fatal(err)
		}
		if ex.Status == queue.StatusCompleted {
			if ex.Result == nil || ex.Result.Origin != executor.OriginReal {
				t.Errorf("completed execution result = %+v", ex.Result)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("execution stuck in %s", ex.Status)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestHandleEnqueueValidation(t *testing.T) {
	h, _ := newTestHandlers(&mockExecutor{}, "")

	tests := []struct {
		name     string
		body     EnqueueRequest
		wantCode int
		wantErr  string
	}{
		{
			"missing tool",
			EnqueueRequest{ProjectID: "p1", Target: "example.com"},
			http.StatusBadRequest, "INVALID_REQUEST",
		},
		{
			"unknown tool",
			EnqueueRequest{ProjectID: "p1", Tool: "masscan", Target: "example.com"},
			http.StatusBadRequest, "UNKNOWN_TOOL",
		},
		{
			"tier restricted",
			EnqueueRequest{ProjectID: "p1", Tool: "nmap", Target: "example.com", Plan: "free"},
			http.StatusForbidden, "TIER_RESTRICTED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.HandleEnqueue, "/executions", tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("got status %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			var resp ErrorResponse
			json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Code != tt.wantErr {
				t.Errorf("got code %q, want %q", resp.Code, tt.wantErr)
			}
		})
	}
}

func TestHandleCancel(t *testing.T) {
	block := make(chan struct{})
	h, q := newTestHandlers(&mockExecutor{block: block}, "")
	ctx := context.Background()
	q.Start(ctx)
	defer func() {
		close(block)
		q.Stop(ctx)
	}()

	runningID, err := q.Enqueue(ctx, queue.Submission{ProjectID: "p1", Tool: "whois", Target: "a", Plan: "free"})
	if err != nil {
		t.Fatal(err)
	}
	queuedID, err := q.Enqueue(ctx, queue.Submission{ProjectID: "p1", Tool: "whois", Target: "b", Plan: "free"})
	if err != nil {
		t.Fatal(err)
	}

	// Wait for the first execution to be admitted.
	deadline := time.Now().Add(5 * time.Second)
	for {
		ex, err := q.Status(runningID)
		if err != nil {
			t.Fatal(err)
		}
		if ex.Status == queue.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("execution never admitted, status %s", ex.Status)
		}
		time.Sleep(2 * time.Millisecond)
	}

	cancel := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/executions/"+id, nil)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		h.HandleCancel(rec, req)
		return rec
	}

	if rec := cancel(queuedID); rec.Code != http.StatusOK {
		t.Errorf("cancel queued: status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if rec := cancel(runningID); rec.Code != http.StatusConflict {
		t.Errorf("cancel running: status %d, want 409: %s", rec.Code, rec.Body.String())
	}
	if rec := cancel("no-such-id"); rec.Code != http.StatusNotFound {
		t.Errorf("cancel unknown: status %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleStats(t *testing.T) {
	h, q := newTestHandlers(&mockExecutor{}, "")
	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(context.Background(), queue.Submission{
			ProjectID: "p1", Tool: "dnsx", Target: "example.com", Plan: "free",
		}); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/queue/stats", nil)
	rec := httptest.NewRecorder()
	h.HandleStats(rec, req)

	var stats StatsResponse
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Queued != 3 || stats.Ceiling != 1 {
		t.Errorf("stats = %+v, want 3 queued with ceiling 1", stats)
	}
}

func TestHandleDecideWithAutoEnqueue(t *testing.T) {
	reply := `{"actions":[{"tool":"subfinder","target":"example.com","confidence":0.9}],"reasoning":"enumerate","confidence":0.9}`
	h, q := newTestHandlers(&mockExecutor{}, reply)
	q.Start(context.Background())
	defer q.Stop(context.Background())

	rec := postJSON(t, h.HandleDecide, "/decide", DecideRequest{
		Text: "map the attack surface", Plan: "paid", Enqueue: true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}

	var resp DecideResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.AutoExecute {
		t.Errorf("AutoExecute = false, want true")
	}
	if len(resp.ExecutionIDs) != 1 {
		t.Errorf("ExecutionIDs = %v, want one scheduled execution", resp.ExecutionIDs)
	}
}

func TestHandleDecideMalformedLLMOutput(t *testing.T) {
	h, _ := newTestHandlers(&mockExecutor{}, "sorry, I can't help with that")

	rec := postJSON(t, h.HandleDecide, "/decide", DecideRequest{Text: "scan", Plan: "free"})
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want degraded 200: %s", rec.Code, rec.Body.String())
	}

	var resp DecideResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.NeedsClarification || len(resp.Actions) != 0 {
		t.Errorf("decision = %+v, want clarification with no actions", resp.Decision)
	}
}

func TestHandleRiskAssessment(t *testing.T) {
	h, _ := newTestHandlers(&mockExecutor{}, "")

	rec := postJSON(t, h.HandleRiskAssessment, "/risk/assessment", RiskRequest{
		Findings: []finding.Finding{
			{ID: "f1", Type: "exposed_secret", Severity: finding.SeverityHigh, Title: "Generic API Key", Description: "committed credential", Target: "repo"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}

	var a risk.Assessment
	if err := json.NewDecoder(rec.Body).Decode(&a); err != nil {
		t.Fatal(err)
	}
	if a.OverallScore <= 0 || len(a.Threats) == 0 {
		t.Errorf("assessment = %+v, want scored threats", a)
	}
}
