// Package config loads the YAML runtime configuration. Cell-level trading
// parameters configured here are defaults for newly created positions;
// each cell carries its own copy thereafter.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/tradecell/tradecell/internal/execution"
	"github.com/tradecell/tradecell/internal/position"
)

// Config is the root of the YAML file.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Cell     CellConfig     `yaml:"cell"`
	Calendar CalendarConfig `yaml:"calendar"`
	Feed     FeedConfig     `yaml:"feed"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Executor ExecutorConfig `yaml:"executor"`
	Runner   RunnerConfig   `yaml:"runner"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// CellConfig mirrors position.Config with YAML-friendly scalar types.
type CellConfig struct {
	TriggerUpPct       float64 `yaml:"trigger_up_pct"`
	TriggerDownPct     float64 `yaml:"trigger_down_pct"`
	MinStockPct        float64 `yaml:"min_stock_pct"`
	MaxStockPct        float64 `yaml:"max_stock_pct"`
	RebalanceRatio     float64 `yaml:"rebalance_ratio"`
	MinNotional        float64 `yaml:"min_notional"`
	CommissionRate     float64 `yaml:"commission_rate"`
	MaxOrdersPerDay    int     `yaml:"max_orders_per_day"`
	WithholdingTaxRate float64 `yaml:"withholding_tax_rate"`
	AllowAfterHours    bool    `yaml:"allow_after_hours"`
}

type CalendarConfig struct {
	Timezone string `yaml:"timezone"`
	Open     string `yaml:"open"`  // "09:30"
	Close    string `yaml:"close"` // "16:00"
}

type FeedConfig struct {
	MaxAgeSeconds int     `yaml:"max_age_seconds"`
	MaxJumpPct    float64 `yaml:"max_jump_pct"`
}

type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	TTLHours int    `yaml:"ttl_hours"`
}

type ExecutorConfig struct {
	SlippagePct         float64 `yaml:"slippage_pct"`
	RatePerSec          float64 `yaml:"rate_per_sec"`
	Burst               int     `yaml:"burst"`
	ConsecutiveFailures uint32  `yaml:"consecutive_failures"`
	FailureRatio        float64 `yaml:"failure_ratio"`
}

type RunnerConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a complete runnable configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Cell: CellConfig{
			TriggerUpPct:       0.03,
			TriggerDownPct:     0.03,
			MinStockPct:        0.25,
			MaxStockPct:        0.75,
			RebalanceRatio:     0.5,
			MinNotional:        100,
			CommissionRate:     0.001,
			MaxOrdersPerDay:    5,
			WithholdingTaxRate: 0.15,
		},
		Calendar: CalendarConfig{Timezone: "America/New_York", Open: "09:30", Close: "16:00"},
		Feed:     FeedConfig{MaxAgeSeconds: 120, MaxJumpPct: 0.25},
		Postgres: PostgresConfig{TimeoutSeconds: 5},
		Redis:    RedisConfig{Prefix: "tradecell", TTLHours: 48},
		Executor: ExecutorConfig{
			RatePerSec:          5,
			Burst:               5,
			ConsecutiveFailures: 3,
			FailureRatio:        0.05,
		},
		Runner:  RunnerConfig{Workers: 4, QueueSize: 256},
		Metrics: MetricsConfig{ListenAddr: ":9181"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// CellDefaults converts the YAML scalars into a position.Config.
func (c *Config) CellDefaults() position.Config {
	return position.Config{
		TriggerUpPct:       decimal.NewFromFloat(c.Cell.TriggerUpPct),
		TriggerDownPct:     decimal.NewFromFloat(c.Cell.TriggerDownPct),
		MinStockPct:        decimal.NewFromFloat(c.Cell.MinStockPct),
		MaxStockPct:        decimal.NewFromFloat(c.Cell.MaxStockPct),
		RebalanceRatio:     decimal.NewFromFloat(c.Cell.RebalanceRatio),
		MinNotional:        decimal.NewFromFloat(c.Cell.MinNotional),
		CommissionRate:     decimal.NewFromFloat(c.Cell.CommissionRate),
		MaxOrdersPerDay:    c.Cell.MaxOrdersPerDay,
		WithholdingTaxRate: decimal.NewFromFloat(c.Cell.WithholdingTaxRate),
		AllowAfterHours:    c.Cell.AllowAfterHours,
	}
}

// GuardSettings converts executor tuning into execution.GuardConfig.
func (c *Config) GuardSettings() execution.GuardConfig {
	g := execution.DefaultGuardConfig()
	if c.Executor.RatePerSec > 0 {
		g.RatePerSec = c.Executor.RatePerSec
	}
	if c.Executor.Burst > 0 {
		g.Burst = c.Executor.Burst
	}
	if c.Executor.ConsecutiveFailures > 0 {
		g.ConsecutiveFailures = c.Executor.ConsecutiveFailures
	}
	if c.Executor.FailureRatio > 0 {
		g.FailureRatio = c.Executor.FailureRatio
	}
	return g
}

// PostgresTimeout returns the per-statement timeout.
func (c *Config) PostgresTimeout() time.Duration {
	return time.Duration(c.Postgres.TimeoutSeconds) * time.Second
}

// RedisTTL returns the dedupe key lifetime.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLHours) * time.Hour
}

// FeedMaxAge returns the tick staleness limit.
func (c *Config) FeedMaxAge() time.Duration {
	return time.Duration(c.Feed.MaxAgeSeconds) * time.Second
}
