package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stepgate/stepgate/internal/domain"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	tariff := cfg.Tariff.Resolve()
	if tariff.StepsPerMinute != 500 || tariff.EntryCostSteps != 500 {
		t.Errorf("default tariff = %+v, want medium 500/500", tariff)
	}
	if cfg.Token.TTLSeconds != 60 {
		t.Errorf("token ttl = %d, want 60", cfg.Token.TTLSeconds)
	}
}

func TestTariffSection_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		section TariffSection
		want    domain.TariffConfig
	}{
		{
			name:    "preset only",
			section: TariffSection{Preset: "easy"},
			want:    domain.TariffConfig{StepsPerMinute: 100, EntryCostSteps: 100},
		},
		{
			name:    "free preset",
			section: TariffSection{Preset: "free"},
			want:    domain.TariffConfig{StepsPerMinute: 100, EntryCostSteps: 0},
		},
		{
			name:    "explicit values win over preset",
			section: TariffSection{Preset: "easy", StepsPerMinute: 250, EntryCostSteps: 50},
			want:    domain.TariffConfig{StepsPerMinute: 250, EntryCostSteps: 50},
		},
		{
			name:    "unknown preset falls back to medium",
			section: TariffSection{Preset: "brutal"},
			want:    domain.TariffConfig{StepsPerMinute: 500, EntryCostSteps: 500},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.section.Resolve(); got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoad_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
listen = "0.0.0.0:9000"
log_level = "debug"

[tariff]
preset = "hard"

[day]
end_hour = 21

[gate]
day_pass_cost_steps = 2000

[gate.entry_cost_overrides]
"com.example.social" = 750
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if got := cfg.Tariff.Resolve(); got.StepsPerMinute != 1000 {
		t.Errorf("tariff = %+v, want hard preset", got)
	}
	if cfg.Day.EndHour != 21 || cfg.Day.EndMinute != 0 {
		t.Errorf("day = %+v", cfg.Day)
	}
	if cfg.Gate.DayPassCostSteps != 2000 {
		t.Errorf("day pass cost = %d", cfg.Gate.DayPassCostSteps)
	}
	if cfg.Gate.EntryCostOverrides["com.example.social"] != 750 {
		t.Errorf("overrides = %v", cfg.Gate.EntryCostOverrides)
	}
	// untouched sections keep defaults
	if cfg.Token.TTLSeconds != 60 {
		t.Errorf("token ttl = %d, want default 60", cfg.Token.TTLSeconds)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != DefaultConfig().Listen {
		t.Errorf("listen = %q, want default", cfg.Listen)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"day end hour 24", func(c *Config) { c.Day.EndHour = 24 }},
		{"negative day end minute", func(c *Config) { c.Day.EndMinute = -1 }},
		{"zero token ttl", func(c *Config) { c.Token.TTLSeconds = 0 }},
		{"negative day pass", func(c *Config) { c.Gate.DayPassCostSteps = -1 }},
		{"negative override", func(c *Config) {
			c.Gate.EntryCostOverrides = map[string]int64{"com.example.app": -5}
		}},
		{"negative steps per minute", func(c *Config) {
			c.Tariff = TariffSection{Preset: "", StepsPerMinute: -10}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
