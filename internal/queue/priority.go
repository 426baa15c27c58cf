package queue

import (
	"math"

	"recon-orchestrator/internal/tier"
)

// criticalTools get a fixed priority bump: their results tend to unblock
// the rest of a recon run.
var criticalTools = map[string]struct{}{
	"nmap":   {},
	"nuclei": {},
	"sqlmap": {},
}

// Priority computes the admission priority for an execution. Pure:
// base 0, +100 for a paid plan, +floor(confidence*10), +20 for a
// critical tool. Confidence outside [0,1] is clamped.
func Priority(plan tier.Plan, toolName string, confidence float64) int {
	if confidence < 0 || math.IsNaN(confidence) {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	p := tier.LimitsFor(plan).PriorityBoost
	p += int(math.Floor(confidence * 10))
	if _, ok := criticalTools[toolName]; ok {
		p += 20
	}
	return p
}

// pendingHeap orders executions by descending priority; equal priorities
// keep submission order (ascending seq), so the ordering is stable.
type pendingHeap []*Execution

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *pendingHeap) Push(x any) {
	ex := x.(*Execution)
	ex.index = len(*h)
	*h = append(*h, ex)
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	ex := old[n-1]
	old[n-1] = nil
	ex.index = -1
	*h = old[:n-1]
	return ex
}
