package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR"`
		GRPCAddr string `yaml:"grpc_addr" env:"GRPC_ADDR"`
	} `yaml:"server" envPrefix:"SERVER_"`
	Log struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Format string `yaml:"format" env:"FORMAT"` // console or json
	} `yaml:"log" envPrefix:"LOG_"`
	Ledger struct {
		BaseURL   string        `yaml:"base_url" env:"BASE_URL"`
		APIKey    string        `yaml:"api_key" env:"API_KEY"`
		Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
		RateLimit float64       `yaml:"rate_limit" env:"RATE_LIMIT"` // requests per second
		Burst     int           `yaml:"burst" env:"BURST"`
		PageSize  int           `yaml:"page_size" env:"PAGE_SIZE"`
		TopStars  int           `yaml:"top_stars" env:"TOP_STARS"` // star count of the top rarity tier
	} `yaml:"ledger" envPrefix:"LEDGER_"`
	Sync struct {
		PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
		Budget       time.Duration `yaml:"budget" env:"BUDGET"`
		Grace        time.Duration `yaml:"grace" env:"GRACE"`
		SweepCron    string        `yaml:"sweep_cron" env:"SWEEP_CRON"` // empty disables the sweep
		SweepJitter  time.Duration `yaml:"sweep_jitter" env:"SWEEP_JITTER"`
	} `yaml:"sync" envPrefix:"SYNC_"`
	Rules struct {
		Dir      string `yaml:"dir" env:"DIR"`
		Watch    bool   `yaml:"watch" env:"WATCH"`
		Remote   bool   `yaml:"remote" env:"REMOTE"`     // ask the ledger service before local files
		Fallback bool   `yaml:"fallback" env:"FALLBACK"` // use builtin defaults when nothing else has rules
	} `yaml:"rules" envPrefix:"RULES_"`
	Simulate struct {
		DailyLimit int    `yaml:"daily_limit" env:"DAILY_LIMIT"` // 0 disables the limit
		FreePulls  string `yaml:"free_pulls" env:"FREE_PULLS"`   // separate or shared
	} `yaml:"simulate" envPrefix:"SIMULATE_"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"` // empty keeps sessions in memory
	} `yaml:"database" envPrefix:"DATABASE_"`
}

// Load reads config from a YAML file, then applies GACHA_* environment overrides
// and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "GACHA_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Ledger.Timeout == 0 {
		c.Ledger.Timeout = 10 * time.Second
	}
	if c.Ledger.RateLimit == 0 {
		c.Ledger.RateLimit = 5
	}
	if c.Ledger.Burst == 0 {
		c.Ledger.Burst = 1
	}
	if c.Ledger.PageSize == 0 {
		c.Ledger.PageSize = 100
	}
	if c.Ledger.TopStars == 0 {
		c.Ledger.TopStars = 6
	}
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = 2 * time.Second
	}
	if c.Sync.Budget == 0 {
		c.Sync.Budget = 30 * time.Second
	}
	if c.Sync.Grace == 0 {
		c.Sync.Grace = 5 * time.Second
	}
	if c.Sync.SweepJitter == 0 {
		c.Sync.SweepJitter = 3 * time.Second
	}
	if c.Rules.Dir == "" {
		c.Rules.Dir = "rules"
	}
	if c.Simulate.FreePulls == "" {
		c.Simulate.FreePulls = "separate"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Ledger.BaseURL == "" {
		errs = append(errs, errors.New("ledger.base_url is required"))
	}
	if c.Ledger.RateLimit < 0 || c.Ledger.Burst < 1 {
		errs = append(errs, errors.New("ledger.rate_limit must be >= 0 and ledger.burst >= 1"))
	}
	if c.Ledger.PageSize < 1 {
		errs = append(errs, errors.New("ledger.page_size must be positive"))
	}
	if c.Ledger.TopStars < 3 {
		errs = append(errs, errors.New("ledger.top_stars must be >= 3"))
	}
	if c.Sync.PollInterval <= 0 || c.Sync.Budget < c.Sync.PollInterval {
		errs = append(errs, errors.New("sync.budget must be at least one positive sync.poll_interval"))
	}
	if c.Sync.Grace < 0 || c.Sync.SweepJitter < 0 {
		errs = append(errs, errors.New("sync.grace and sync.sweep_jitter must not be negative"))
	}
	if c.Simulate.DailyLimit < 0 {
		errs = append(errs, errors.New("simulate.daily_limit must not be negative"))
	}
	switch c.Simulate.FreePulls {
	case "separate", "shared":
	default:
		errs = append(errs, fmt.Errorf("simulate.free_pulls %q must be separate or shared", c.Simulate.FreePulls))
	}
	return errors.Join(errs...)
}
