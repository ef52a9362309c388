// Package engine provides the colony's allocation policy and the fixed-rate
// control loop that drives it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTickRate is the number of ticks per second at speed 1.
const DefaultTickRate = 60

// Stepper is what the engine drives. Step reports whether the run is done.
// Shutdown runs exactly once after the last Step.
type Stepper interface {
	Step(tick uint64) (bool, error)
	Shutdown()
}

// Engine drives a Stepper forward at a fixed rate.
type Engine struct {
	Interval    time.Duration // Base tick interval (default 1/60 s)
	ReportEvery uint64        // Ticks between OnReport calls (0 = never)

	// OnReport runs on the engine goroutine after every ReportEvery-th tick.
	OnReport func(tick uint64)

	sim Stepper

	mu      sync.Mutex
	tick    uint64  // Current tick counter (monotonic, never resets)
	speed   float64 // Multiplier: 1.0 = real-time, 0 = paused
	running bool
}

// NewEngine creates an engine ticking at DefaultTickRate.
func NewEngine(sim Stepper) *Engine {
	return &Engine{
		Interval:    time.Second / DefaultTickRate,
		ReportEvery: DefaultTickRate,
		sim:         sim,
		speed:       1.0,
	}
}

// Run starts the loop and blocks until the Stepper reports done, a step
// fails, Stop is called, or ctx is cancelled. In-flight work is cancelled
// before Run returns. The returned error is the failing step's, if any.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.mu.Unlock()

	slog.Info("colony engine started", "tick", e.Tick(), "speed", e.Speed(), "interval", e.Interval)

	err := e.loop(ctx)
	e.sim.Shutdown()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	slog.Info("colony engine stopped", "tick", e.Tick())
	return err
}

func (e *Engine) loop(ctx context.Context) error {
	for e.Running() {
		if ctx.Err() != nil {
			return nil
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused, sleep briefly and check again.
			if !sleepCtx(ctx, 100*time.Millisecond) {
				return nil
			}
			continue
		}

		start := time.Now()

		done, err := e.step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target && !sleepCtx(ctx, target-elapsed) {
			return nil
		}
	}
	return nil
}

// step advances the simulation by one tick.
func (e *Engine) step() (bool, error) {
	e.mu.Lock()
	e.tick++
	tick := e.tick
	e.mu.Unlock()

	done, err := e.sim.Step(tick)
	if err != nil {
		return false, err
	}

	if e.ReportEvery > 0 && tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(tick)
	}
	return done, nil
}

// Stop halts the loop after the current tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Tick returns the last tick number started.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Speed returns the pacing multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the pacing multiplier. Zero or below pauses the loop.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = speed
}

// SimTime returns the elapsed wall time represented by a tick count at the
// given interval, e.g. "1m2.5s".
func SimTime(tick uint64, interval time.Duration) string {
	return (time.Duration(tick) * interval).Round(100 * time.Millisecond).String()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
