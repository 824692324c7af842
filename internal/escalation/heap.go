// Package escalation schedules the SIGKILL that follows a SIGTERM grace
// window, for however many Executions are mid-teardown at once.
package escalation

import "time"

// deadline is one pending escalation: kill pid at when, unless cancelled.
type deadline struct {
	pid   int
	when  time.Time
	index int
}

// deadlineHeap is a min-heap ordered by when.
type deadlineHeap []*deadline

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	d := x.(*deadline)
	d.index = len(*h)
	*h = append(*h, d)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	d.index = -1
	*h = old[:n-1]
	return d
}
