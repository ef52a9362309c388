// Agent activities. Each activity debits its cost synchronously, then queues
// a task whose effect credits the yield once its duration has elapsed.
// Switching to a different activity first queues a retooling task.
package agents

import (
	"fmt"
	"log/slog"

	"github.com/talgya/foobar-colony/internal/economy"
	"github.com/talgya/foobar-colony/internal/entropy"
	"github.com/talgya/foobar-colony/internal/task"
)

// Rules holds activity durations (nominal units), costs, and yields.
type Rules struct {
	MineADuration      float64
	MineBMinDuration   float64
	MineBMaxDuration   float64
	ProcessDuration    float64
	SellUnitDuration   float64
	ShopDuration       float64
	ChangeWorkDuration float64

	ProcessSuccessRate float64       // Draws at or below this rate fail
	ProcessCost        economy.Delta // Debited when processing is assigned
	ShopCost           economy.Delta // Debited when shopping is assigned
	SellBatch          int           // Processed units sold per trip
	SellPrice          int           // Currency per unit sold
}

// DefaultRules returns the standard balance.
func DefaultRules() Rules {
	return Rules{
		MineADuration:      1,
		MineBMinDuration:   0.5,
		MineBMaxDuration:   2,
		ProcessDuration:    2,
		SellUnitDuration:   2,
		ShopDuration:       1,
		ChangeWorkDuration: 5,

		ProcessSuccessRate: 0.6,
		ProcessCost:        economy.Delta{RawA: 1, RawB: 1},
		ShopCost:           economy.Delta{RawA: 6, Currency: 3},
		SellBatch:          5,
		SellPrice:          1,
	}
}

// SellCost is the processed stock debited by one selling trip.
func (r Rules) SellCost() economy.Delta {
	return economy.Delta{Processed: r.SellBatch}
}

// Colony is the shared state activities read and mutate.
type Colony struct {
	Ledger *economy.Ledger
	Roster *Roster
	Rules  Rules
	Rand   *entropy.Source
}

// Perform starts the activity for the given work state.
func (a *Agent) Perform(kind WorkState, c *Colony) error {
	switch kind {
	case MiningA:
		return a.MineA(c)
	case MiningB:
		return a.MineB(c)
	case Processing:
		return a.Process(c)
	case Selling:
		return a.Sell(c)
	case Shopping:
		return a.Shop(c)
	default:
		return fmt.Errorf("agent %d: %s is not an activity", a.ID, kind)
	}
}

// MineA queues one unit of raw A.
func (a *Agent) MineA(c *Colony) error {
	a.assign(MiningA, c.Rules, &task.Task{
		Name:     "mine_a",
		Duration: c.Rules.MineADuration,
		Effect:   func() { c.Ledger.Credit(economy.Delta{RawA: 1}) },
	})
	return nil
}

// MineB queues one unit of raw B. Its duration varies per trip.
func (a *Agent) MineB(c *Colony) error {
	a.assign(MiningB, c.Rules, &task.Task{
		Name:     "mine_b",
		Duration: c.Rand.Uniform(c.Rules.MineBMinDuration, c.Rules.MineBMaxDuration),
		Effect:   func() { c.Ledger.Credit(economy.Delta{RawB: 1}) },
	})
	return nil
}

// Process debits one A and one B now. On completion it yields a processed
// good, or on failure returns a single unit of B.
func (a *Agent) Process(c *Colony) error {
	if err := c.Ledger.Debit(c.Rules.ProcessCost); err != nil {
		return fmt.Errorf("agent %d process: %w", a.ID, err)
	}
	a.assign(Processing, c.Rules, &task.Task{
		Name:     "process",
		Duration: c.Rules.ProcessDuration,
		Effect: func() {
			if c.Rand.Float() > c.Rules.ProcessSuccessRate {
				c.Ledger.Credit(economy.Delta{Processed: 1})
			} else {
				c.Ledger.Credit(economy.Delta{RawB: 1})
			}
		},
	})
	return nil
}

// Sell debits a batch of processed goods now and credits the proceeds on
// completion.
func (a *Agent) Sell(c *Colony) error {
	if err := c.Ledger.Debit(c.Rules.SellCost()); err != nil {
		return fmt.Errorf("agent %d sell: %w", a.ID, err)
	}
	proceeds := c.Rules.SellBatch * c.Rules.SellPrice
	a.assign(Selling, c.Rules, &task.Task{
		Name:     "sell",
		Duration: c.Rules.SellUnitDuration * float64(c.Rules.SellBatch),
		Effect:   func() { c.Ledger.Credit(economy.Delta{Currency: proceeds}) },
	})
	return nil
}

// Shop pays for a new agent now; the agent joins the roster on completion.
func (a *Agent) Shop(c *Colony) error {
	if err := c.Ledger.Debit(c.Rules.ShopCost); err != nil {
		return fmt.Errorf("agent %d shop: %w", a.ID, err)
	}
	a.assign(Shopping, c.Rules, &task.Task{
		Name:     "shop",
		Duration: c.Rules.ShopDuration,
		Effect: func() {
			hired := c.Roster.Spawn(Unassigned)
			slog.Debug("agent joined", "id", hired.ID, "buyer", a.ID, "roster", c.Roster.Len())
		},
	})
	return nil
}

// assign queues t, preceded by a retooling task when the agent is not
// already in the target state.
func (a *Agent) assign(target WorkState, rules Rules, t *task.Task) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != target {
		a.state = ChangingWork
		a.pending = append(a.pending, a.track(&task.Task{
			Name:     "change_work",
			Duration: rules.ChangeWorkDuration,
			Effect:   func() { a.setState(target) },
		}))
	}
	a.pending = append(a.pending, a.track(t))
}

// track wires the busy flag to the task's lifecycle.
func (a *Agent) track(t *task.Task) *task.Task {
	t.Owner = uint64(a.ID)
	t.OnStart = a.markBusy
	t.OnComplete = a.markIdle
	return t
}

func (a *Agent) markBusy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		panic(fmt.Sprintf("agent %d started a second task while busy", a.ID))
	}
	a.busy = true
}

func (a *Agent) markIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = false
	a.completed++
}

func (a *Agent) setState(s WorkState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = s
}
