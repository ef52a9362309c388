// Command colony runs the foobar colony until it reaches its target roster.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/talgya/foobar-colony/internal/agents"
	"github.com/talgya/foobar-colony/internal/api"
	"github.com/talgya/foobar-colony/internal/config"
	"github.com/talgya/foobar-colony/internal/display"
	"github.com/talgya/foobar-colony/internal/economy"
	"github.com/talgya/foobar-colony/internal/engine"
	"github.com/talgya/foobar-colony/internal/entropy"
	"github.com/talgya/foobar-colony/internal/persistence"
	"github.com/talgya/foobar-colony/internal/task"
)

func main() {
	// ── Configuration ────────────────────────────────────────────────
	cfg := config.Default()
	if path := os.Getenv("COLONY_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			slog.Error("failed to load config", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if v := os.Getenv("COLONY_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			slog.Error("invalid COLONY_SEED", "value", v, "error", err)
			os.Exit(1)
		}
		cfg.Seed = seed
	}

	// The live frame owns stdout on a terminal; logs move to stderr.
	interactive := isatty.IsTerminal(os.Stdout.Fd())
	logOut := os.Stdout
	if interactive {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("foobar colony",
		"time_factor", cfg.TimeFactor,
		"tick_rate_hz", cfg.TickRateHz,
		"win_roster", cfg.WinRoster,
		"scheduler", cfg.Scheduler,
		"seed", cfg.Seed,
	)

	// ── Journal ──────────────────────────────────────────────────────
	var db *persistence.DB
	runID := uuid.Nil
	dbPath := envOrDefault("COLONY_DB", "data/colony.db")
	if dbPath != "off" {
		if dir := filepath.Dir(dbPath); dir != "." {
			os.MkdirAll(dir, 0755)
		}
		var err error
		db, err = persistence.Open(dbPath)
		if err != nil {
			slog.Error("failed to open journal", "path", dbPath, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		runID, err = db.BeginRun(time.Now())
		if err != nil {
			slog.Error("failed to register run", "error", err)
			os.Exit(1)
		}
		slog.Info("journal opened", "path", dbPath)
	}

	// ── Colony ───────────────────────────────────────────────────────
	colony := &agents.Colony{
		Ledger: economy.NewLedger(economy.Balance{}),
		Roster: agents.NewRoster(cfg.InitialRoster...),
		Rules:  cfg.Rules(),
		Rand:   entropy.FromSeed(cfg.Seed),
	}

	var sched task.Scheduler
	switch cfg.Scheduler {
	case config.SchedulerManual:
		sched = task.NewManualScheduler(cfg.TimeFactor)
	default:
		sched = task.NewTimerScheduler(cfg.TimeFactor)
	}

	// ── Simulation ───────────────────────────────────────────────────
	sim := engine.NewSimulation(colony, engine.NewAllocator(cfg.Policy()), sched,
		cfg.TickInterval(), cfg.WinRoster)

	every := uint64(cfg.TickRateHz)
	if interactive {
		sim.Display = display.Multi{display.NewTerminal(os.Stdout, true), display.Log{Every: 0}}
	} else {
		sim.Display = display.Log{Every: every}
	}

	eng := engine.NewEngine(sim)
	eng.Interval = cfg.TickInterval()
	eng.ReportEvery = every
	if db != nil {
		eng.OnReport = func(tick uint64) {
			if err := db.RecordSnapshot(runID, sim.Snapshot()); err != nil {
				slog.Warn("journal write failed", "tick", tick, "error", err)
			}
		}
	}

	// ── HTTP API ─────────────────────────────────────────────────────
	if port := envIntOrDefault("COLONY_API_PORT", 0); port > 0 {
		adminKey := os.Getenv("COLONY_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("COLONY_ADMIN_KEY not set, admin endpoints disabled")
		}
		apiServer := &api.Server{
			Sim:      sim,
			Eng:      eng,
			DB:       db,
			RunID:    runID,
			Port:     port,
			AdminKey: adminKey,
		}
		apiServer.Start()
		defer apiServer.Close()
	}

	// ── Start ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	runErr := eng.Run(ctx)
	final := sim.Snapshot()
	won := sim.Won()

	if db != nil {
		if err := db.FinishRun(runID, time.Now(), final, won, runErr); err != nil {
			slog.Warn("failed to record run outcome", "error", err)
		}
	}

	if runErr != nil {
		var inv *economy.InvariantError
		if errors.As(runErr, &inv) {
			slog.Error("ledger invariant violated", "tick", inv.Tick, "ledger", inv.Balance.String())
		} else {
			slog.Error("simulation aborted", "tick", final.Tick, "ledger", final.Ledger.String(), "error", runErr)
		}
		os.Exit(1)
	}

	slog.Info("simulation stopped",
		"won", won,
		"ticks", final.Tick,
		"sim_time", engine.SimTime(final.Tick, eng.Interval),
		"wall_time", time.Since(started).Round(time.Millisecond),
		"agents", final.Agents,
	)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
