package task

import (
	"container/heap"
	"sync"
	"time"
)

// ManualScheduler keeps pending completions in a min-heap ordered by due
// time on a virtual clock. Nothing fires until Advance is called, and
// completions then run on the caller's goroutine in due order.
type ManualScheduler struct {
	TimeFactor float64

	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending dueHeap
}

// NewManualScheduler creates a virtual-clock scheduler starting at zero.
func NewManualScheduler(timeFactor float64) *ManualScheduler {
	return &ManualScheduler{TimeFactor: timeFactor}
}

// Schedule runs OnStart and queues the task for Now()+scaled duration.
func (s *ManualScheduler) Schedule(t *Task) *Handle {
	h := newHandle(t)
	start(t)

	s.mu.Lock()
	s.seq++
	heap.Push(&s.pending, &dueItem{
		at:     s.now + Scale(t.Duration, s.TimeFactor),
		seq:    s.seq,
		handle: h,
	})
	s.mu.Unlock()
	return h
}

// Advance moves the clock forward by d and fires every task now due.
// Tasks sharing a due time fire in scheduling order.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*Handle
	for s.pending.Len() > 0 && s.pending[0].at <= s.now {
		due = append(due, heap.Pop(&s.pending).(*dueItem).handle)
	}
	s.mu.Unlock()

	for _, h := range due {
		h.fire()
	}
}

// Now returns the virtual clock.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of queued tasks, cancelled ones included
// until their due time passes.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

type dueItem struct {
	at     time.Duration
	seq    uint64
	handle *Handle
}

type dueHeap []*dueItem

func (h dueHeap) Len() int { return len(h) }

func (h dueHeap) Less(i, j int) bool {
	if h[i].at == h[j].at {
		return h[i].seq < h[j].seq
	}
	return h[i].at < h[j].at
}

func (h dueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *dueHeap) Push(x any) { *h = append(*h, x.(*dueItem)) }

func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
