// Package daemon wires the engine together: configuration, persistence,
// the HTTP API, the day-boundary scheduler, and the token janitor.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/stepgate/stepgate/internal/domain"
)

// Config is the daemon configuration, loaded from TOML.
type Config struct {
	Listen   string `toml:"listen"`
	DataDir  string `toml:"data_dir"`
	LogLevel string `toml:"log_level"`
	Metrics  bool   `toml:"metrics"`

	Tariff TariffSection `toml:"tariff"`
	Day    DaySection    `toml:"day"`
	Token  TokenSection  `toml:"token"`
	Gate   GateSection   `toml:"gate"`
}

// TariffSection selects a preset or spells the rates out. A non-zero
// explicit value wins over the preset.
type TariffSection struct {
	Preset         string `toml:"preset"`
	StepsPerMinute int64  `toml:"steps_per_minute"`
	EntryCostSteps int64  `toml:"entry_cost_steps"`
}

// Resolve returns the concrete tariff: preset defaults overlaid with any
// explicit values.
func (t TariffSection) Resolve() domain.TariffConfig {
	cfg := domain.TariffPreset(t.Preset).Config()
	if t.StepsPerMinute != 0 {
		cfg.StepsPerMinute = t.StepsPerMinute
	}
	if t.EntryCostSteps != 0 {
		cfg.EntryCostSteps = t.EntryCostSteps
	}
	return cfg
}

// DaySection is the economic-day window.
type DaySection struct {
	EndHour   int `toml:"end_hour"`
	EndMinute int `toml:"end_minute"`
}

// Window returns the section as a domain value.
func (d DaySection) Window() domain.DayWindow {
	return domain.DayWindow{DayEndHour: d.EndHour, DayEndMinute: d.EndMinute}
}

// TokenSection configures the handoff token authority.
type TokenSection struct {
	TTLSeconds int `toml:"ttl_seconds"`
}

// GateSection configures day passes and per-app prices.
type GateSection struct {
	DayPassCostSteps   int64            `toml:"day_pass_cost_steps"`
	EntryCostOverrides map[string]int64 `toml:"entry_cost_overrides"`
}

// DefaultConfig returns the built-in defaults: a local listener, the
// medium tariff, midnight day end, and a 60 second token TTL.
func DefaultConfig() Config {
	return Config{
		Listen:   "127.0.0.1:8422",
		DataDir:  defaultDataDir(),
		LogLevel: "info",
		Metrics:  true,
		Tariff:   TariffSection{Preset: string(domain.TariffMedium)},
		Token:    TokenSection{TTLSeconds: 60},
	}
}

func defaultDataDir() string {
	if env := os.Getenv("STEPGATE_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stepgate"
	}
	return filepath.Join(home, ".stepgate")
}

// Load reads path over the defaults. A missing file is not an error; the
// defaults then apply unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, cfg.Validate()
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the daemon must not start with.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Listen, validation.Required),
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.LogLevel, validation.Required,
			validation.In("debug", "info", "warn", "error")),
	)
	if err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Day,
		validation.Field(&c.Day.EndHour, validation.Min(0), validation.Max(23)),
		validation.Field(&c.Day.EndMinute, validation.Min(0), validation.Max(59)),
	); err != nil {
		return fmt.Errorf("day: %w", err)
	}
	// ozzo skips threshold rules on zero values, so the TTL floor is
	// checked by hand
	if c.Token.TTLSeconds < 1 {
		return fmt.Errorf("token: ttl_seconds must be >= 1, got %d", c.Token.TTLSeconds)
	}
	if err := c.Tariff.Resolve().Validate(); err != nil {
		return fmt.Errorf("tariff: %w", err)
	}
	if c.Gate.DayPassCostSteps < 0 {
		return fmt.Errorf("gate: day_pass_cost_steps must be >= 0, got %d", c.Gate.DayPassCostSteps)
	}
	for app, cost := range c.Gate.EntryCostOverrides {
		if cost < 0 {
			return fmt.Errorf("gate: entry cost override for %s must be >= 0, got %d", app, cost)
		}
	}
	return nil
}
