// Package config loads application configuration with viper.
//
// Priority (highest to lowest):
//  1. Environment variables with DOCFLOW_ prefix (e.g. DOCFLOW_DATABASE_DSN)
//  2. config.yaml
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"docflow/internal/core/id"
	"docflow/internal/domain/guard"
	"docflow/internal/domain/journal"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Lock       LockConfig
	Tax        TaxConfig
	Allocation AllocationConfig
	Numbering  NumberingConfig
	Accounts   AccountsConfig
	Policy     PolicyConfig
	Outbox     OutboxConfig
	Guards     []guard.Rule
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

type LogConfig struct {
	Level       string
	Development bool
}

// DatabaseConfig selects the postgres backend when DSN is set.
type DatabaseConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// RedisConfig selects the distributed locker when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type LockConfig struct {
	Timeout time.Duration
}

type TaxConfig struct {
	Rate decimal.Decimal
}

type AllocationConfig struct {
	Epsilon decimal.Decimal
}

type NumberingConfig struct {
	Strategy    string // strict | cached
	PadWidth    int
	IncludeYear bool
}

// AccountsConfig holds chart-of-accounts ids used by the journal builder.
type AccountsConfig struct {
	Inventory  string
	Receivable string
	Payable    string
	Revenue    string
	TaxOutput  string
	TaxInput   string
	COGS       string
	Clearing   string
}

// PolicyConfig closes every period on or before ClosedUntil. Zero means open.
type PolicyConfig struct {
	ClosedUntil time.Time
}

type OutboxConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// Load reads config.yaml from the standard search paths plus env overrides.
func Load() (*Config, error) {
	return load("")
}

// LoadFile reads configuration from an explicit file plus env overrides.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/docflow")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("DOCFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			DSN:      v.GetString("database.dsn"),
			MaxConns: v.GetInt32("database.max_conns"),
			MinConns: v.GetInt32("database.min_conns"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		Lock: LockConfig{
			Timeout: v.GetDuration("lock.timeout"),
		},
		Numbering: NumberingConfig{
			Strategy:    v.GetString("numbering.strategy"),
			PadWidth:    v.GetInt("numbering.pad_width"),
			IncludeYear: !v.IsSet("numbering.include_year") || v.GetBool("numbering.include_year"),
		},
		Accounts: AccountsConfig{
			Inventory:  v.GetString("accounts.inventory"),
			Receivable: v.GetString("accounts.receivable"),
			Payable:    v.GetString("accounts.payable"),
			Revenue:    v.GetString("accounts.revenue"),
			TaxOutput:  v.GetString("accounts.tax_output"),
			TaxInput:   v.GetString("accounts.tax_input"),
			COGS:       v.GetString("accounts.cogs"),
			Clearing:   v.GetString("accounts.clearing"),
		},
		Outbox: OutboxConfig{
			BatchSize:    v.GetInt("outbox.batch_size"),
			PollInterval: v.GetDuration("outbox.poll_interval"),
		},
	}

	var err error
	if cfg.Tax.Rate, err = parseDecimal(v.GetString("tax.rate"), "tax.rate"); err != nil {
		return nil, err
	}
	if cfg.Allocation.Epsilon, err = parseDecimal(v.GetString("allocation.epsilon"), "allocation.epsilon"); err != nil {
		return nil, err
	}
	if s := v.GetString("policy.closed_until"); s != "" {
		cfg.Policy.ClosedUntil, err = time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, fmt.Errorf("policy.closed_until: %w", err)
		}
	}
	if err := v.UnmarshalKey("guards", &cfg.Guards); err != nil {
		return nil, fmt.Errorf("guards: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDecimal(s, key string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// applyDefaults sets default values for any empty config fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "docflow"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}
	if cfg.Lock.Timeout == 0 {
		cfg.Lock.Timeout = 5 * time.Second
	}
	if cfg.Tax.Rate.IsZero() {
		cfg.Tax.Rate = decimal.RequireFromString("0.11")
	}
	if cfg.Allocation.Epsilon.IsZero() {
		cfg.Allocation.Epsilon = decimal.RequireFromString("0.01")
	}
	if cfg.Numbering.Strategy == "" {
		cfg.Numbering.Strategy = "strict"
	}
	if cfg.Numbering.PadWidth == 0 {
		cfg.Numbering.PadWidth = 5
	}
	if cfg.Outbox.BatchSize == 0 {
		cfg.Outbox.BatchSize = 100
	}
	if cfg.Outbox.PollInterval == 0 {
		cfg.Outbox.PollInterval = time.Second
	}
}

// validate performs validation on the configuration.
func (c *Config) validate() error {
	if c.Tax.Rate.IsNegative() || c.Tax.Rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax.rate must be in [0, 1), got %s", c.Tax.Rate)
	}
	if c.Allocation.Epsilon.IsNegative() {
		return fmt.Errorf("allocation.epsilon cannot be negative")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) cannot exceed database.max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}
	switch c.Numbering.Strategy {
	case "strict", "cached":
	default:
		return fmt.Errorf("numbering.strategy must be strict or cached, got %q", c.Numbering.Strategy)
	}
	if c.Numbering.PadWidth < 1 {
		return fmt.Errorf("numbering.pad_width must be positive")
	}
	if c.App.Env == "production" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required in production")
	}
	return nil
}

// UsePostgres reports whether the postgres backend is configured.
func (c *Config) UsePostgres() bool { return c.Database.DSN != "" }

// UseRedis reports whether the distributed locker is configured.
func (c *Config) UseRedis() bool { return c.Redis.Addr != "" }

// accountNamespace derives stable ids for accounts left unset in config, so
// restarts keep posting to the same ledger accounts.
var accountNamespace = uuid.MustParse("6f1c2a44-3b0e-4c7d-9a51-0d2e8b7f4c13")

// Resolve parses the configured account ids.
func (a AccountsConfig) Resolve() (journal.Accounts, error) {
	var out journal.Accounts
	for _, f := range []struct {
		name string
		raw  string
		dst  *id.ID
	}{
		{"inventory", a.Inventory, &out.Inventory},
		{"receivable", a.Receivable, &out.Receivable},
		{"payable", a.Payable, &out.Payable},
		{"revenue", a.Revenue, &out.Revenue},
		{"taxOutput", a.TaxOutput, &out.TaxOutput},
		{"taxInput", a.TaxInput, &out.TaxInput},
		{"cogs", a.COGS, &out.COGS},
		{"clearing", a.Clearing, &out.Clearing},
	} {
		if f.raw == "" {
			*f.dst = uuid.NewSHA1(accountNamespace, []byte(f.name))
			continue
		}
		v, err := id.Parse(f.raw)
		if err != nil {
			return journal.Accounts{}, fmt.Errorf("accounts.%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return out, nil
}
