// Simulation ties the colony, the allocator, and the task scheduler together
// and advances them one tick at a time.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/foobar-colony/internal/agents"
	"github.com/talgya/foobar-colony/internal/economy"
	"github.com/talgya/foobar-colony/internal/task"
)

// Snapshot is a read-only view of the colony handed to displays.
type Snapshot struct {
	Tick     uint64                   `json:"tick"`
	Agents   int                      `json:"agents"`
	ByState  map[agents.WorkState]int `json:"by_state"`
	Ledger   economy.Balance          `json:"ledger"`
	InFlight int                      `json:"in_flight"`
	Finished bool                     `json:"finished"`
}

// Display renders snapshots. Implementations must not retain or mutate
// the ByState map across calls.
type Display interface {
	Render(Snapshot)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(Snapshot)

// Render calls f(s).
func (f DisplayFunc) Render(s Snapshot) { f(s) }

// Simulation holds the colony and drives one tick per Step.
type Simulation struct {
	Colony    *agents.Colony
	Allocator *Allocator
	Scheduler task.Scheduler
	Display   Display // Optional

	TickInterval time.Duration // Clock advance per tick for virtual-clock schedulers
	WinRoster    int           // Roster size that ends the run

	mu       sync.Mutex
	running  []*task.Handle // Dispatched tasks not yet completed
	lastTick uint64
	finished bool
}

// NewSimulation creates a simulation. A zero winRoster never terminates on
// its own.
func NewSimulation(c *agents.Colony, al *Allocator, s task.Scheduler, tickInterval time.Duration, winRoster int) *Simulation {
	return &Simulation{
		Colony:       c,
		Allocator:    al,
		Scheduler:    s,
		TickInterval: tickInterval,
		WinRoster:    winRoster,
	}
}

// Step runs one tick: completions due on a virtual clock, allocation,
// dispatch, pruning, the invariant check, and rendering. It reports whether
// the win condition has been reached.
func (s *Simulation) Step(tick uint64) (bool, error) {
	if adv, ok := s.Scheduler.(task.Advancer); ok {
		adv.Advance(s.TickInterval)
	}

	if err := s.Allocator.Allocate(s.Colony); err != nil {
		return false, fmt.Errorf("tick %d: %w", tick, err)
	}

	var started []*task.Handle
	for _, a := range s.Colony.Roster.Agents() {
		if !a.Ready() {
			continue
		}
		h, err := a.Dispatch(s.Scheduler)
		if err != nil {
			return false, fmt.Errorf("tick %d: %w", tick, err)
		}
		if h != nil {
			started = append(started, h)
		}
	}

	s.mu.Lock()
	s.lastTick = tick
	s.running = append(s.running, started...)
	s.pruneLocked()
	s.mu.Unlock()

	if err := s.Colony.Ledger.Check(tick); err != nil {
		return false, err
	}

	s.render()
	return s.Won(), nil
}

// Won reports whether the roster has reached the target size.
func (s *Simulation) Won() bool {
	return s.WinRoster > 0 && s.Colony.Roster.Len() >= s.WinRoster
}

// Shutdown cancels every in-flight task and renders a final snapshot.
// Effects that have not fired are discarded; none fire after it returns.
func (s *Simulation) Shutdown() {
	s.mu.Lock()
	running := s.running
	s.running = nil
	s.finished = true
	s.mu.Unlock()

	cancelled := 0
	for _, h := range running {
		if h.Cancel() {
			cancelled++
		}
	}
	slog.Info("simulation shut down",
		"cancelled", cancelled,
		"agents", s.Colony.Roster.Len(),
		"won", s.Won(),
	)
	s.render()
}

// Snapshot returns the current view. Safe to call from any goroutine.
func (s *Simulation) Snapshot() Snapshot {
	roster := s.Colony.Roster.Agents()
	byState := make(map[agents.WorkState]int, agents.NumWorkStates)
	for _, a := range roster {
		byState[a.State()]++
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Tick:     s.lastTick,
		Agents:   len(roster),
		ByState:  byState,
		Ledger:   s.Colony.Ledger.Balance(),
		InFlight: len(s.running),
		Finished: s.finished,
	}
}

// InFlight returns the number of tracked task handles.
func (s *Simulation) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *Simulation) pruneLocked() {
	live := s.running[:0]
	for _, h := range s.running {
		if h.Alive() {
			live = append(live, h)
		}
	}
	for i := len(live); i < len(s.running); i++ {
		s.running[i] = nil
	}
	s.running = live
}

func (s *Simulation) render() {
	if s.Display != nil {
		s.Display.Render(s.Snapshot())
	}
}
