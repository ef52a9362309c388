package task_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/foobar-colony/internal/task"
)

func TestScale(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, task.Scale(1, 0.1))
	assert.Equal(t, 500*time.Millisecond, task.Scale(5, 0.1))
	assert.Equal(t, 2*time.Second, task.Scale(2, 1))
}

func TestManualOnStartRunsBeforeSchedule(t *testing.T) {
	s := task.NewManualScheduler(0.1)
	var started, effected bool

	h := s.Schedule(&task.Task{
		Duration: 1,
		OnStart:  func() { started = true },
		Effect:   func() { effected = true },
	})

	assert.True(t, started, "OnStart must run synchronously")
	assert.False(t, effected)
	assert.True(t, h.Alive())
	assert.False(t, h.Fired())
}

func TestManualFiresInDueOrder(t *testing.T) {
	s := task.NewManualScheduler(1)
	var order []string
	add := func(name string, d float64) {
		s.Schedule(&task.Task{
			Name:     name,
			Duration: d,
			Effect:   func() { order = append(order, name+".effect") },
			OnComplete: func() {
				order = append(order, name+".complete")
			},
		})
	}
	add("slow", 2)
	add("fast", 1)
	add("tie", 1)

	s.Advance(500 * time.Millisecond)
	assert.Empty(t, order)

	s.Advance(500 * time.Millisecond)
	assert.Equal(t, []string{"fast.effect", "fast.complete", "tie.effect", "tie.complete"}, order)

	s.Advance(time.Second)
	assert.Equal(t, "slow.complete", order[len(order)-1])
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 2*time.Second, s.Now())
}

func TestManualCancel(t *testing.T) {
	s := task.NewManualScheduler(1)
	var fired bool
	h := s.Schedule(&task.Task{Duration: 1, Effect: func() { fired = true }})

	assert.True(t, h.Cancel())
	assert.False(t, h.Alive())
	assert.True(t, h.Cancelled())

	s.Advance(2 * time.Second)
	assert.False(t, fired)

	// Cancelling again is a no-op.
	assert.False(t, h.Cancel())
}

func TestCancelAfterFireIsNoop(t *testing.T) {
	s := task.NewManualScheduler(1)
	var n int
	h := s.Schedule(&task.Task{Duration: 1, Effect: func() { n++ }})
	s.Advance(time.Second)

	assert.False(t, h.Cancel())
	assert.False(t, h.Cancelled())
	assert.True(t, h.Fired())
	assert.Equal(t, 1, n)

	select {
	case <-h.Done():
	default:
		t.Fatal("done channel should be closed after completion")
	}
}

func TestTimerSchedulerCompletes(t *testing.T) {
	s := task.NewTimerScheduler(0.01)
	var effect, complete atomic.Bool
	var started bool

	h := s.Schedule(&task.Task{
		Duration:   1,
		OnStart:    func() { started = true },
		Effect:     func() { effect.Store(true) },
		OnComplete: func() { complete.Store(true) },
	})
	require.True(t, started)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timer task never completed")
	}
	assert.True(t, effect.Load())
	assert.True(t, complete.Load())
	assert.False(t, h.Alive())
}

func TestTimerSchedulerCancel(t *testing.T) {
	s := task.NewTimerScheduler(1)
	var fired atomic.Bool
	h := s.Schedule(&task.Task{Duration: 60, Effect: func() { fired.Store(true) }})

	require.True(t, h.Cancel())
	<-h.Done()
	assert.False(t, fired.Load())
	assert.False(t, h.Alive())
}

func TestTimerCancelWaitsForRunningEffect(t *testing.T) {
	s := task.NewTimerScheduler(0.001)
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	h := s.Schedule(&task.Task{
		Duration: 1,
		Effect: func() {
			close(entered)
			<-release
			finished.Store(true)
		},
	})

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("effect never started")
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	assert.False(t, h.Cancel())
	assert.True(t, finished.Load(), "Cancel must not return while the effect runs")
}
