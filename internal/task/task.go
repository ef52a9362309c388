// Package task provides deferred, one-shot units of work that complete
// asynchronously after a scaled duration.
package task

import (
	"sync"
	"time"
)

// Task is a unit of work with a nominal duration and a completion effect.
type Task struct {
	Name     string  // Short label for logs ("mine_a", "change_work", ...)
	Owner    uint64  // ID of the agent that queued it
	Duration float64 // Nominal time units, scaled by the scheduler's time factor

	Effect     func() // Runs once the duration has elapsed
	OnStart    func() // Runs synchronously inside Schedule, before any delay
	OnComplete func() // Runs after Effect, on the same execution context
}

// Scheduler starts tasks. OnStart must have returned by the time Schedule
// returns; Effect and OnComplete run later, possibly on another goroutine.
type Scheduler interface {
	Schedule(t *Task) *Handle
}

// Advancer is implemented by schedulers driven by an external clock rather
// than wall time. The control loop advances them once per tick.
type Advancer interface {
	Advance(d time.Duration)
}

// Scale converts a nominal duration into wall-clock time.
// One nominal unit is one second before compression.
func Scale(nominal, timeFactor float64) time.Duration {
	return time.Duration(nominal * timeFactor * float64(time.Second))
}

type handleState uint8

const (
	statePending handleState = iota
	stateRunning
	stateDone
	stateCancelled
)

// Handle tracks one scheduled task.
type Handle struct {
	task *Task

	mu    sync.Mutex
	state handleState
	timer *time.Timer // nil for virtual-clock schedulers
	done  chan struct{}
}

func newHandle(t *Task) *Handle {
	return &Handle{task: t, done: make(chan struct{})}
}

// Name returns the label of the underlying task.
func (h *Handle) Name() string {
	return h.task.Name
}

// Alive reports whether the task has neither completed nor been cancelled.
func (h *Handle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == statePending || h.state == stateRunning
}

// Fired reports whether the effect has started running.
func (h *Handle) Fired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateRunning || h.state == stateDone
}

// Cancelled reports whether Cancel stopped the task before it fired.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateCancelled
}

// Done is closed once the task has completed or been cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel prevents Effect and OnComplete from running. It returns true if the
// task was still pending. If the effect is already running, Cancel waits for
// it to finish and returns false, so no completion is observable afterwards.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	switch h.state {
	case statePending:
		h.state = stateCancelled
		if h.timer != nil {
			h.timer.Stop()
		}
		close(h.done)
		h.mu.Unlock()
		return true
	case stateRunning:
		h.mu.Unlock()
		<-h.done
		return false
	default:
		h.mu.Unlock()
		return false
	}
}

// fire runs the effect and completion hook unless the handle was cancelled.
func (h *Handle) fire() {
	h.mu.Lock()
	if h.state != statePending {
		h.mu.Unlock()
		return
	}
	h.state = stateRunning
	h.mu.Unlock()

	if h.task.Effect != nil {
		h.task.Effect()
	}
	if h.task.OnComplete != nil {
		h.task.OnComplete()
	}

	h.mu.Lock()
	h.state = stateDone
	close(h.done)
	h.mu.Unlock()
}

func start(t *Task) {
	if t.OnStart != nil {
		t.OnStart()
	}
}
