package reactor

import "time"

// timerEntry is one scheduled, possibly-cancelled callback. Cancellation
// is lazy: cancelled entries are simply skipped when popped, which keeps
// Cancel O(log n) without needing to locate and remove an arbitrary
// element from the heap.
type timerEntry struct {
	deadline  time.Time
	seq       uint64 // insertion order, breaks deadline ties
	fn        func()
	cancelled bool
	index     int // maintained by container/heap
}

// TimerHandle is returned by ScheduleTimer and stored by the caller
// (e.g. directly in a sender-half's syn_timer/fin_timer/slot field) so
// it can later be passed to CancelTimer.
type TimerHandle struct {
	entry *timerEntry
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
