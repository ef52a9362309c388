package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/foobar-colony/internal/agents"
	"github.com/talgya/foobar-colony/internal/engine"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.1, cfg.TimeFactor)
	assert.Equal(t, 30, cfg.WinRoster)
	assert.Equal(t, 0.6, cfg.SuccessRate)
	assert.Equal(t, []agents.WorkState{agents.MiningA, agents.MiningA}, cfg.InitialRoster)
	assert.Equal(t, time.Second/60, cfg.TickInterval())
	assert.Equal(t, slog.LevelInfo, cfg.Level())

	// Round-trips into the same values the core packages default to.
	assert.Equal(t, agents.DefaultRules(), cfg.Rules())
	assert.Equal(t, engine.DefaultPolicy(), cfg.Policy())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colony.yaml")
	doc := `
tick_rate_hz: 20
win_roster: 12
scheduler: manual
log_level: debug
initial_roster: [mining_a, mining_b, unassigned]
exclusive_scarce: false
durations:
  change_work: 3
thresholds:
  sell: 10
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.TickRateHz)
	assert.Equal(t, 12, cfg.WinRoster)
	assert.Equal(t, SchedulerManual, cfg.Scheduler)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, []agents.WorkState{agents.MiningA, agents.MiningB, agents.Unassigned}, cfg.InitialRoster)
	assert.False(t, cfg.Policy().Exclusive)
	assert.Equal(t, 3.0, cfg.Rules().ChangeWorkDuration)
	assert.Equal(t, 10, cfg.Policy().SellMin)

	// Untouched fields keep their defaults.
	assert.Equal(t, 0.1, cfg.TimeFactor)
	assert.Equal(t, 1.0, cfg.Durations.MineA)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("initial_roster: [flying]\n"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "flying")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("success_rate: 2\n"), 0o644))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "success_rate")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"time factor", func(c *Config) { c.TimeFactor = 0 }, "time_factor"},
		{"tick rate", func(c *Config) { c.TickRateHz = -1 }, "tick_rate_hz"},
		{"win roster", func(c *Config) { c.WinRoster = 0 }, "win_roster"},
		{"scheduler", func(c *Config) { c.Scheduler = "cron" }, "scheduler"},
		{"empty roster", func(c *Config) { c.InitialRoster = nil }, "initial_roster"},
		{"changing roster", func(c *Config) { c.InitialRoster = []agents.WorkState{agents.ChangingWork} }, "changing_work"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"duration", func(c *Config) { c.Durations.Shop = 0 }, "durations"},
		{"mine b range", func(c *Config) { c.Durations.MineBMax = 0.1 }, "mine_b_max"},
		{"sell batch", func(c *Config) { c.Costs.SellBatch = 0 }, "sell_batch"},
		{"sell threshold", func(c *Config) { c.Thresholds.Sell = 4 }, "thresholds.sell"},
		{"process threshold", func(c *Config) { c.Thresholds.ProcessRawB = 0 }, "process_raw_b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
