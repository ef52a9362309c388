// Package config holds the colony's tunable constants as one explicit value.
// Defaults reproduce the standard game balance; a YAML file may override any
// subset of them.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/foobar-colony/internal/agents"
	"github.com/talgya/foobar-colony/internal/economy"
	"github.com/talgya/foobar-colony/internal/engine"
)

// Scheduler kinds.
const (
	SchedulerTimer  = "timer"  // Wall-clock timers, concurrent completions
	SchedulerManual = "manual" // Virtual clock advanced once per tick
)

// Config is the full set of tunables.
type Config struct {
	TimeFactor  float64 `yaml:"time_factor"`  // Nominal units → seconds multiplier
	TickRateHz  int     `yaml:"tick_rate_hz"` // Control loop rate
	WinRoster   int     `yaml:"win_roster"`   // Roster size that ends the run
	SuccessRate float64 `yaml:"success_rate"` // Processing draws at or below this fail
	Seed        int64   `yaml:"seed"`         // 0 = crypto-random
	Scheduler   string  `yaml:"scheduler"`
	LogLevel    string  `yaml:"log_level"`

	InitialRoster   []agents.WorkState `yaml:"initial_roster"`
	ExclusiveScarce bool               `yaml:"exclusive_scarce"`

	Durations  Durations  `yaml:"durations"`
	Costs      Costs      `yaml:"costs"`
	Thresholds Thresholds `yaml:"thresholds"`
}

// Durations are in nominal time units.
type Durations struct {
	MineA      float64 `yaml:"mine_a"`
	MineBMin   float64 `yaml:"mine_b_min"`
	MineBMax   float64 `yaml:"mine_b_max"`
	Process    float64 `yaml:"process"`
	SellUnit   float64 `yaml:"sell_unit"`
	Shop       float64 `yaml:"shop"`
	ChangeWork float64 `yaml:"change_work"`
}

// Costs of the activities that consume stock.
type Costs struct {
	ShopCurrency int `yaml:"shop_currency"`
	ShopRawA     int `yaml:"shop_raw_a"`
	ProcessRawA  int `yaml:"process_raw_a"`
	ProcessRawB  int `yaml:"process_raw_b"`
	SellBatch    int `yaml:"sell_batch"`
	SellPrice    int `yaml:"sell_price"`
}

// Thresholds gate the allocator rules.
type Thresholds struct {
	Sell        int `yaml:"sell"`
	ProcessRawA int `yaml:"process_raw_a"`
	ProcessRawB int `yaml:"process_raw_b"`
	MineBRawA   int `yaml:"mine_b_raw_a"`
}

// Default returns the standard balance.
func Default() Config {
	rules := agents.DefaultRules()
	policy := engine.DefaultPolicy()
	return Config{
		TimeFactor:  0.1,
		TickRateHz:  engine.DefaultTickRate,
		WinRoster:   30,
		SuccessRate: rules.ProcessSuccessRate,
		Scheduler:   SchedulerTimer,
		LogLevel:    "info",

		InitialRoster:   []agents.WorkState{agents.MiningA, agents.MiningA},
		ExclusiveScarce: policy.Exclusive,

		Durations: Durations{
			MineA:      rules.MineADuration,
			MineBMin:   rules.MineBMinDuration,
			MineBMax:   rules.MineBMaxDuration,
			Process:    rules.ProcessDuration,
			SellUnit:   rules.SellUnitDuration,
			Shop:       rules.ShopDuration,
			ChangeWork: rules.ChangeWorkDuration,
		},
		Costs: Costs{
			ShopCurrency: rules.ShopCost.Currency,
			ShopRawA:     rules.ShopCost.RawA,
			ProcessRawA:  rules.ProcessCost.RawA,
			ProcessRawB:  rules.ProcessCost.RawB,
			SellBatch:    rules.SellBatch,
			SellPrice:    rules.SellPrice,
		},
		Thresholds: Thresholds{
			Sell:        policy.SellMin,
			ProcessRawA: policy.ProcessMinA,
			ProcessRawB: policy.ProcessMinB,
			MineBRawA:   policy.MineBMinA,
		},
	}
}

// Load overlays the YAML file at path on Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run safely.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.TimeFactor > 0, "time_factor must be positive, got %v", c.TimeFactor)
	check(c.TickRateHz > 0, "tick_rate_hz must be positive, got %d", c.TickRateHz)
	check(c.WinRoster > 0, "win_roster must be positive, got %d", c.WinRoster)
	check(c.SuccessRate >= 0 && c.SuccessRate <= 1, "success_rate must be in [0,1], got %v", c.SuccessRate)
	check(c.Scheduler == SchedulerTimer || c.Scheduler == SchedulerManual,
		"scheduler must be %q or %q, got %q", SchedulerTimer, SchedulerManual, c.Scheduler)
	check(len(c.InitialRoster) > 0, "initial_roster must not be empty")
	for _, st := range c.InitialRoster {
		check(st != agents.ChangingWork, "initial_roster cannot start in %s", st)
	}
	var lvl slog.Level
	check(lvl.UnmarshalText([]byte(c.LogLevel)) == nil, "log_level %q is not a slog level", c.LogLevel)

	d := c.Durations
	check(d.MineA > 0 && d.MineBMin > 0 && d.Process > 0 && d.SellUnit > 0 && d.Shop > 0 && d.ChangeWork > 0,
		"durations must be positive: %+v", d)
	check(d.MineBMax >= d.MineBMin, "durations.mine_b_max %v below mine_b_min %v", d.MineBMax, d.MineBMin)

	k := c.Costs
	check(k.ShopCurrency >= 0 && k.ShopRawA >= 0 && k.ProcessRawA >= 0 && k.ProcessRawB >= 0 && k.SellPrice >= 0,
		"costs must not be negative: %+v", k)
	check(k.SellBatch > 0, "costs.sell_batch must be positive, got %d", k.SellBatch)

	th := c.Thresholds
	check(th.Sell >= k.SellBatch, "thresholds.sell %d below sell_batch %d", th.Sell, k.SellBatch)
	check(th.ProcessRawA >= k.ProcessRawA, "thresholds.process_raw_a %d below its cost %d", th.ProcessRawA, k.ProcessRawA)
	check(th.ProcessRawB >= k.ProcessRawB, "thresholds.process_raw_b %d below its cost %d", th.ProcessRawB, k.ProcessRawB)

	return errors.Join(errs...)
}

// Rules builds the activity rules.
func (c Config) Rules() agents.Rules {
	return agents.Rules{
		MineADuration:      c.Durations.MineA,
		MineBMinDuration:   c.Durations.MineBMin,
		MineBMaxDuration:   c.Durations.MineBMax,
		ProcessDuration:    c.Durations.Process,
		SellUnitDuration:   c.Durations.SellUnit,
		ShopDuration:       c.Durations.Shop,
		ChangeWorkDuration: c.Durations.ChangeWork,

		ProcessSuccessRate: c.SuccessRate,
		ProcessCost:        economy.Delta{RawA: c.Costs.ProcessRawA, RawB: c.Costs.ProcessRawB},
		ShopCost:           economy.Delta{RawA: c.Costs.ShopRawA, Currency: c.Costs.ShopCurrency},
		SellBatch:          c.Costs.SellBatch,
		SellPrice:          c.Costs.SellPrice,
	}
}

// Policy builds the allocator thresholds.
func (c Config) Policy() engine.Policy {
	return engine.Policy{
		SellMin:     c.Thresholds.Sell,
		ProcessMinA: c.Thresholds.ProcessRawA,
		ProcessMinB: c.Thresholds.ProcessRawB,
		MineBMinA:   c.Thresholds.MineBRawA,
		Exclusive:   c.ExclusiveScarce,
	}
}

// TickInterval is the wall time of one tick at speed 1.
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRateHz)
}

// Level returns the parsed log level, falling back to info.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
