// Package agents provides the worker agent model, its work-state machine,
// and the append-only colony roster.
package agents

import (
	"errors"
	"fmt"
	"sync"

	"github.com/talgya/foobar-colony/internal/task"
)

// AgentID is a unique identifier for an agent. IDs follow creation order.
type AgentID uint64

// ErrBusy is returned when a task is dispatched to an agent that already has
// one in flight.
var ErrBusy = errors.New("agent busy")

// WorkState is what an agent is currently assigned to do.
type WorkState uint8

const (
	Unassigned   WorkState = iota
	MiningA                // Mining raw resource A
	MiningB                // Mining raw resource B
	Processing             // Combining A + B into a processed good
	Shopping               // Buying a new agent
	Selling                // Selling processed goods
	ChangingWork           // Retooling between two activities
)

// NumWorkStates is the total number of work states.
const NumWorkStates = 7

var workStateNames = [NumWorkStates]string{
	"unassigned",
	"mining_a",
	"mining_b",
	"processing",
	"shopping",
	"selling",
	"changing_work",
}

// AllWorkStates lists every state in display order.
func AllWorkStates() []WorkState {
	out := make([]WorkState, NumWorkStates)
	for i := range out {
		out[i] = WorkState(i)
	}
	return out
}

func (w WorkState) String() string {
	if int(w) < len(workStateNames) {
		return workStateNames[w]
	}
	return fmt.Sprintf("WorkState(%d)", uint8(w))
}

// MarshalText implements encoding.TextMarshaler.
func (w WorkState) MarshalText() ([]byte, error) {
	if int(w) >= len(workStateNames) {
		return nil, fmt.Errorf("unknown work state %d", uint8(w))
	}
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *WorkState) UnmarshalText(text []byte) error {
	for i, name := range workStateNames {
		if name == string(text) {
			*w = WorkState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown work state %q", text)
}

// Agent is one worker. It performs at most one task at a time and queues
// the rest in FIFO order.
type Agent struct {
	ID AgentID

	mu        sync.Mutex
	state     WorkState
	busy      bool
	pending   []*task.Task
	completed uint64 // Tasks finished, transitions included
}

// NewAgent creates an idle agent in the given state.
func NewAgent(id AgentID, state WorkState) *Agent {
	return &Agent{ID: id, state: state}
}

// Status is a point-in-time copy of an agent's mutable fields.
type Status struct {
	ID        AgentID   `json:"id"`
	State     WorkState `json:"state"`
	Busy      bool      `json:"busy"`
	Pending   int       `json:"pending"`
	Completed uint64    `json:"completed"`
}

// Status returns a consistent copy of the agent's state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		ID:        a.ID,
		State:     a.state,
		Busy:      a.busy,
		Pending:   len(a.pending),
		Completed: a.completed,
	}
}

// State returns the current work state.
func (a *Agent) State() WorkState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Busy reports whether a task is in flight.
func (a *Agent) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// Idle reports whether the agent can take a new assignment: nothing in
// flight and nothing queued.
func (a *Agent) Idle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.busy && len(a.pending) == 0
}

// Ready reports whether the agent has a queued task and nothing in flight.
func (a *Agent) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.busy && len(a.pending) > 0
}

// Dispatch pops the front of the queue and hands it to s. It returns a nil
// handle when nothing is queued, and ErrBusy if a task is already in flight.
func (a *Agent) Dispatch(s task.Scheduler) (*task.Handle, error) {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		return nil, fmt.Errorf("dispatch to agent %d: %w", a.ID, ErrBusy)
	}
	if len(a.pending) == 0 {
		a.mu.Unlock()
		return nil, nil
	}
	next := a.pending[0]
	a.pending[0] = nil
	a.pending = a.pending[1:]
	a.mu.Unlock()

	// OnStart marks the agent busy before Schedule returns.
	return s.Schedule(next), nil
}

// Roster is the ordered, append-only collection of agents.
type Roster struct {
	mu     sync.RWMutex
	agents []*Agent
	nextID AgentID
}

// NewRoster creates a roster with one agent per initial state.
func NewRoster(initial ...WorkState) *Roster {
	r := &Roster{nextID: 1}
	for _, st := range initial {
		r.Spawn(st)
	}
	return r
}

// Spawn creates a new agent and appends it.
func (r *Roster) Spawn(state WorkState) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := NewAgent(r.nextID, state)
	r.nextID++
	r.agents = append(r.agents, a)
	return a
}

// Len returns the number of agents.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Agents returns a copy of the roster in creation order.
func (r *Roster) Agents() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// CountByState tallies agents per work state.
func (r *Roster) CountByState() map[WorkState]int {
	counts := make(map[WorkState]int, NumWorkStates)
	for _, a := range r.Agents() {
		counts[a.State()]++
	}
	return counts
}
