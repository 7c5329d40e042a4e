package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/punchamoorthee/atomicbank/internal/domain"
)

// Config holds the settings shared by the dashboard client and the reference ledger.
type Config struct {
	// Client
	LedgerBaseURL  string        `mapstructure:"LEDGER_BASE_URL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	SharedPassword string        `mapstructure:"SHARED_PASSWORD"`
	DepositAmount  string        `mapstructure:"DEPOSIT_AMOUNT"`
	Identities     string        `mapstructure:"IDENTITIES"`
	MetricsAddr    string        `mapstructure:"METRICS_ADDR"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	// Reference ledger
	Port               string `mapstructure:"SERVER_PORT"`
	DBSource           string `mapstructure:"DB_SOURCE"`
	Env                string `mapstructure:"ENVIRONMENT"`
	RedisURL           string `mapstructure:"REDIS_URL"`
	RateLimitPerMinute int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	OpeningBalance     string `mapstructure:"OPENING_BALANCE"`

	// Parsed forms, filled by Load.
	Registry       *domain.Registry `mapstructure:"-"`
	Deposit        decimal.Decimal  `mapstructure:"-"`
	OpeningDeposit decimal.Decimal  `mapstructure:"-"`
}

var keys = []string{
	"LEDGER_BASE_URL", "REQUEST_TIMEOUT", "SHARED_PASSWORD", "DEPOSIT_AMOUNT", "IDENTITIES",
	"METRICS_ADDR", "LOG_LEVEL", "SERVER_PORT", "DB_SOURCE", "ENVIRONMENT", "REDIS_URL",
	"RATE_LIMIT_PER_MINUTE", "OPENING_BALANCE",
}

// Load reads configuration from the environment and an optional .env file in path.
func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("LEDGER_BASE_URL", "http://localhost:8080")
	viper.SetDefault("REQUEST_TIMEOUT", "10s")
	viper.SetDefault("SHARED_PASSWORD", "password123")
	viper.SetDefault("DEPOSIT_AMOUNT", "500")
	viper.SetDefault("IDENTITIES", FormatIdentities(domain.DefaultIdentities))
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("OPENING_BALANCE", "1000")

	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "error", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.LedgerBaseURL = strings.TrimRight(strings.TrimSpace(cfg.LedgerBaseURL), "/")
	if cfg.LedgerBaseURL == "" {
		return nil, fmt.Errorf("LEDGER_BASE_URL must not be empty")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", cfg.RequestTimeout)
	}
	if cfg.SharedPassword == "" {
		return nil, fmt.Errorf("SHARED_PASSWORD must not be empty")
	}

	identities, err := ParseIdentities(cfg.Identities)
	if err != nil {
		return nil, fmt.Errorf("IDENTITIES: %w", err)
	}
	if cfg.Registry, err = domain.NewRegistry(identities); err != nil {
		return nil, fmt.Errorf("IDENTITIES: %w", err)
	}

	if cfg.Deposit, err = positiveDecimal(cfg.DepositAmount); err != nil {
		return nil, fmt.Errorf("DEPOSIT_AMOUNT: %w", err)
	}
	if cfg.OpeningDeposit, err = decimal.NewFromString(strings.TrimSpace(cfg.OpeningBalance)); err != nil || cfg.OpeningDeposit.IsNegative() {
		return nil, fmt.Errorf("OPENING_BALANCE must be a non-negative decimal, got %q", cfg.OpeningBalance)
	}
	if cfg.OpeningDeposit, err = domain.CheckAmount(cfg.OpeningDeposit); err != nil {
		return nil, fmt.Errorf("OPENING_BALANCE: %w", err)
	}

	if cfg.RateLimitPerMinute < 0 {
		slog.Warn("negative rate limit configured; disabling", "rate_limit_per_minute", cfg.RateLimitPerMinute)
		cfg.RateLimitPerMinute = 0
	}

	return &cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseIdentities reads "id:name:handle:avatar" entries separated by ';'.
func ParseIdentities(raw string) ([]domain.Identity, error) {
	var out []domain.Identity
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("entry %q: want id:name:handle:avatar", entry)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: invalid id: %w", entry, err)
		}
		out = append(out, domain.Identity{
			ID:     id,
			Name:   strings.TrimSpace(parts[1]),
			Handle: strings.TrimSpace(parts[2]),
			Avatar: strings.TrimSpace(parts[3]),
		})
	}
	return out, nil
}

// FormatIdentities is the inverse of ParseIdentities.
func FormatIdentities(identities []domain.Identity) string {
	entries := make([]string, 0, len(identities))
	for _, id := range identities {
		entries = append(entries, fmt.Sprintf("%d:%s:%s:%s", id.ID, id.Name, id.Handle, id.Avatar))
	}
	return strings.Join(entries, ";")
}

func positiveDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", raw)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("must be positive, got %q", raw)
	}
	return domain.CheckAmount(d)
}
