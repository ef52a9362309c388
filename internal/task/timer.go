package task

import "time"

// TimerScheduler runs each task on its own runtime timer. Completions fire
// on timer goroutines and are not serialized with each other.
type TimerScheduler struct {
	TimeFactor float64
}

// NewTimerScheduler creates a wall-clock scheduler.
func NewTimerScheduler(timeFactor float64) *TimerScheduler {
	return &TimerScheduler{TimeFactor: timeFactor}
}

// Schedule runs OnStart, then arms a timer for the scaled duration.
func (s *TimerScheduler) Schedule(t *Task) *Handle {
	h := newHandle(t)
	start(t)

	// The timer is assigned under the handle lock so a concurrent Cancel
	// always sees it.
	h.mu.Lock()
	h.timer = time.AfterFunc(Scale(t.Duration, s.TimeFactor), h.fire)
	h.mu.Unlock()
	return h
}
