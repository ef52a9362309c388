// Allocation policy: decides what each idle agent does next.
// Rules are evaluated top to bottom against the live ledger; first match wins.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/foobar-colony/internal/agents"
	"github.com/talgya/foobar-colony/internal/economy"
)

// Policy holds allocation thresholds.
type Policy struct {
	SellMin     int // Processed stock needed before anyone sells
	ProcessMinA int // Raw A needed before processing
	ProcessMinB int // Raw B needed before processing
	MineBMinA   int // Raw A stockpile at which agents switch to mining B

	// Exclusive limits shopping and selling to one agent each per tick,
	// preferring an idle agent already in that work state.
	Exclusive bool
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		SellMin:     5,
		ProcessMinA: 8,
		ProcessMinB: 2,
		MineBMinA:   10,
		Exclusive:   true,
	}
}

// Allocator assigns activities to idle agents once per tick.
type Allocator struct {
	Policy Policy
}

// NewAllocator creates an allocator with the given policy.
func NewAllocator(p Policy) *Allocator {
	return &Allocator{Policy: p}
}

// Allocate assigns one activity to every agent with nothing in flight and
// nothing queued. Costs are debited by the activity itself; every rule
// checks the debit is covered first.
func (al *Allocator) Allocate(c *agents.Colony) error {
	var idle []*agents.Agent
	for _, a := range c.Roster.Agents() {
		if a.Idle() {
			idle = append(idle, a)
		}
	}
	if len(idle) == 0 {
		return nil
	}

	if !al.Policy.Exclusive {
		for _, a := range idle {
			if err := al.assign(c, a, al.Choose(c.Ledger.Balance(), c.Rules)); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if idle, err = al.assignScarce(c, idle, agents.Shopping, canShop); err != nil {
		return err
	}
	if idle, err = al.assignScarce(c, idle, agents.Selling, al.canSell); err != nil {
		return err
	}
	for _, a := range idle {
		if err := al.assign(c, a, al.chooseCommon(c.Ledger.Balance(), c.Rules)); err != nil {
			return err
		}
	}
	return nil
}

// Choose runs the full priority chain for one agent.
func (al *Allocator) Choose(bal economy.Balance, rules agents.Rules) agents.WorkState {
	switch {
	case canShop(bal, rules):
		return agents.Shopping
	case al.canSell(bal, rules):
		return agents.Selling
	default:
		return al.chooseCommon(bal, rules)
	}
}

// chooseCommon is the chain below the scarce activities.
func (al *Allocator) chooseCommon(bal economy.Balance, rules agents.Rules) agents.WorkState {
	switch {
	case al.canProcess(bal, rules):
		return agents.Processing
	case bal.RawA >= al.Policy.MineBMinA:
		return agents.MiningB
	default:
		return agents.MiningA
	}
}

// assignScarce gives kind to at most one agent from idle and returns the
// agents still unassigned.
func (al *Allocator) assignScarce(c *agents.Colony, idle []*agents.Agent, kind agents.WorkState,
	eligible func(economy.Balance, agents.Rules) bool) ([]*agents.Agent, error) {
	if len(idle) == 0 || !eligible(c.Ledger.Balance(), c.Rules) {
		return idle, nil
	}

	pick := 0
	for i, a := range idle {
		if a.State() == kind {
			pick = i
			break
		}
	}
	if err := al.assign(c, idle[pick], kind); err != nil {
		return idle, err
	}

	rest := make([]*agents.Agent, 0, len(idle)-1)
	rest = append(rest, idle[:pick]...)
	return append(rest, idle[pick+1:]...), nil
}

func (al *Allocator) assign(c *agents.Colony, a *agents.Agent, kind agents.WorkState) error {
	if err := a.Perform(kind, c); err != nil {
		return fmt.Errorf("assign %s: %w", kind, err)
	}
	slog.Debug("assigned", "agent", a.ID, "activity", kind.String())
	return nil
}

func canShop(bal economy.Balance, rules agents.Rules) bool {
	return bal.Covers(rules.ShopCost)
}

func (al *Allocator) canSell(bal economy.Balance, rules agents.Rules) bool {
	return bal.Processed >= al.Policy.SellMin && bal.Covers(rules.SellCost())
}

func (al *Allocator) canProcess(bal economy.Balance, rules agents.Rules) bool {
	return bal.RawA >= al.Policy.ProcessMinA &&
		bal.RawB >= al.Policy.ProcessMinB &&
		bal.Covers(rules.ProcessCost)
}
