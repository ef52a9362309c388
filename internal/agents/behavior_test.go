package agents_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/talgya/foobar-colony/internal/agents"
	"github.com/talgya/foobar-colony/internal/economy"
	"github.com/talgya/foobar-colony/internal/entropy"
	"github.com/talgya/foobar-colony/internal/task"
)

const timeFactor = 0.1

func newColony(bal economy.Balance, initial ...agents.WorkState) *agents.Colony {
	return &agents.Colony{
		Ledger: economy.NewLedger(bal),
		Roster: agents.NewRoster(initial...),
		Rules:  agents.DefaultRules(),
		Rand:   entropy.NewSeeded(1),
	}
}

// runToIdle dispatches queued tasks and advances the clock until the agent
// has nothing queued or in flight.
func runToIdle(t *testing.T, a *agents.Agent, s *task.ManualScheduler) []string {
	t.Helper()
	var names []string
	for i := 0; i < 1000; i++ {
		if a.Idle() {
			return names
		}
		if a.Ready() {
			h, err := a.Dispatch(s)
			require.NoError(t, err)
			names = append(names, h.Name())
		}
		s.Advance(10 * time.Millisecond)
	}
	t.Fatal("agent never became idle")
	return nil
}

func TestSameStateSkipsTransition(t *testing.T) {
	c := newColony(economy.Balance{}, agents.MiningA)
	a := c.Roster.Agents()[0]
	s := task.NewManualScheduler(timeFactor)

	require.NoError(t, a.MineA(c))
	assert.Equal(t, 1, a.Status().Pending)
	assert.Equal(t, agents.MiningA, a.State())

	assert.Equal(t, []string{"mine_a"}, runToIdle(t, a, s))
	assert.Equal(t, 1, c.Ledger.Balance().RawA)
}

func TestChangeOfWorkPassesThroughChangingWork(t *testing.T) {
	c := newColony(economy.Balance{}, agents.MiningA)
	a := c.Roster.Agents()[0]
	s := task.NewManualScheduler(timeFactor)

	require.NoError(t, a.MineB(c))
	assert.Equal(t, 2, a.Status().Pending)
	assert.Equal(t, agents.ChangingWork, a.State())

	// Transition fires first and takes 5 units.
	h, err := a.Dispatch(s)
	require.NoError(t, err)
	assert.Equal(t, "change_work", h.Name())
	assert.True(t, a.Busy())

	s.Advance(task.Scale(5, timeFactor) - time.Millisecond)
	assert.Equal(t, agents.ChangingWork, a.State())
	s.Advance(time.Millisecond)
	assert.Equal(t, agents.MiningB, a.State())
	assert.False(t, a.Busy())

	assert.Equal(t, []string{"mine_b"}, runToIdle(t, a, s))
	assert.Equal(t, 1, c.Ledger.Balance().RawB)
	assert.Equal(t, uint64(2), a.Status().Completed)
}

func TestUnassignedAgentRetools(t *testing.T) {
	c := newColony(economy.Balance{}, agents.Unassigned)
	a := c.Roster.Agents()[0]
	s := task.NewManualScheduler(timeFactor)

	require.NoError(t, a.MineA(c))
	assert.Equal(t, []string{"change_work", "mine_a"}, runToIdle(t, a, s))
	assert.Equal(t, agents.MiningA, a.State())
}

func TestDispatchToBusyAgentFails(t *testing.T) {
	c := newColony(economy.Balance{}, agents.Unassigned)
	a := c.Roster.Agents()[0]
	s := task.NewManualScheduler(timeFactor)

	require.NoError(t, a.MineA(c))
	_, err := a.Dispatch(s)
	require.NoError(t, err)

	_, err = a.Dispatch(s)
	assert.True(t, errors.Is(err, agents.ErrBusy))
}

func TestDispatchEmptyQueue(t *testing.T) {
	a := agents.NewAgent(1, agents.MiningA)
	h, err := a.Dispatch(task.NewManualScheduler(timeFactor))
	assert.NoError(t, err)
	assert.Nil(t, h)
}

func TestShopScenario(t *testing.T) {
	c := newColony(economy.Balance{RawA: 6, Currency: 3}, agents.Shopping)
	a := c.Roster.Agents()[0]
	s := task.NewManualScheduler(timeFactor)

	require.NoError(t, a.Shop(c))
	assert.Equal(t, economy.Balance{}, c.Ledger.Balance())
	assert.Equal(t, 1, c.Roster.Len())

	runToIdle(t, a, s)
	assert.Equal(t, 2, c.Roster.Len())
	hired := c.Roster.Agents()[1]
	assert.Equal(t, agents.AgentID(2), hired.ID)
	assert.Equal(t, agents.Unassigned, hired.State())
}

func TestShopWithoutFundsQueuesNothing(t *testing.T) {
	c := newColony(economy.Balance{RawA: 5, Currency: 3}, agents.Shopping)
	a := c.Roster.Agents()[0]

	err := a.Shop(c)
	assert.True(t, errors.Is(err, economy.ErrOverdraw))
	assert.True(t, a.Idle())
	assert.Equal(t, economy.Balance{RawA: 5, Currency: 3}, c.Ledger.Balance())
}

func TestProcessYieldsExactlyOneOutcome(t *testing.T) {
	for seed := int64(1); seed <= 50; seed++ {
		c := newColony(economy.Balance{RawA: 1, RawB: 1}, agents.Processing)
		c.Rand = entropy.NewSeeded(seed)
		a := c.Roster.Agents()[0]
		s := task.NewManualScheduler(timeFactor)

		require.NoError(t, a.Process(c))
		assert.Equal(t, economy.Balance{}, c.Ledger.Balance())

		runToIdle(t, a, s)
		bal := c.Ledger.Balance()
		assert.Equal(t, 0, bal.RawA)
		assert.Equal(t, 1, bal.Processed+bal.RawB, "seed %d: %s", seed, bal)
	}
}

func TestProcessOutcomeFollowsSuccessRate(t *testing.T) {
	c := newColony(economy.Balance{RawA: 2, RawB: 2}, agents.Processing)
	a := c.Roster.Agents()[0]
	s := task.NewManualScheduler(timeFactor)

	c.Rules.ProcessSuccessRate = 1 // never succeeds
	require.NoError(t, a.Process(c))
	runToIdle(t, a, s)
	assert.Equal(t, economy.Balance{RawA: 1, RawB: 2}, c.Ledger.Balance())

	c.Rules.ProcessSuccessRate = -1 // always succeeds
	require.NoError(t, a.Process(c))
	runToIdle(t, a, s)
	assert.Equal(t, economy.Balance{RawB: 1, Processed: 1}, c.Ledger.Balance())
}

func TestSellCreditsProceeds(t *testing.T) {
	c := newColony(economy.Balance{Processed: 7}, agents.Selling)
	a := c.Roster.Agents()[0]
	s := task.NewManualScheduler(timeFactor)

	require.NoError(t, a.Sell(c))
	assert.Equal(t, 2, c.Ledger.Balance().Processed)

	runToIdle(t, a, s)
	assert.Equal(t, economy.Balance{Processed: 2, Currency: 5}, c.Ledger.Balance())
}

func TestPerformRejectsNonActivity(t *testing.T) {
	c := newColony(economy.Balance{}, agents.MiningA)
	a := c.Roster.Agents()[0]
	assert.Error(t, a.Perform(agents.ChangingWork, c))
	assert.NoError(t, a.Perform(agents.MiningA, c))
}

func TestWorkStateText(t *testing.T) {
	var doc struct {
		States []agents.WorkState `yaml:"states"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("states: [mining_a, changing_work]"), &doc))
	assert.Equal(t, []agents.WorkState{agents.MiningA, agents.ChangingWork}, doc.States)

	err := yaml.Unmarshal([]byte("states: [dancing]"), &doc)
	assert.Error(t, err)

	assert.Equal(t, "selling", agents.Selling.String())
	assert.Len(t, agents.AllWorkStates(), agents.NumWorkStates)
}

func TestRosterCounts(t *testing.T) {
	r := agents.NewRoster(agents.MiningA, agents.MiningA, agents.Selling)
	counts := r.CountByState()
	assert.Equal(t, 2, counts[agents.MiningA])
	assert.Equal(t, 1, counts[agents.Selling])
	assert.Equal(t, 3, r.Len())
}
