// Package config loads runtime configuration from the environment and an optional .env file.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// DefaultSwapAddresses are the swap routers and pools of the default token.
var DefaultSwapAddresses = []string{
	"0xf50782a24afcb26acb85d086cf892bfffb5731b5",
	"0x8d1179873ff63da28642b333569b993ef7796abd",
	"0xd9ffa5dd8b595b904f76e3e7d71e4f85c3afa9ae",
	"0xedcad4bd04f59e8fcc7c5fc7547e5112ae9923df",
	"0xea9cb97ed3d711afd07f1ba91b568627d12b6f9f",
	"0x4e7bbe1279c8ca0098698ee1f47d0b1ad246d44a",
}

const (
	defaultTokenAddress = "0xedcad4bd04f59e8fcc7c5fc7547e5112ae9923df"
	defaultBuyLink      = "https://swapscanner.io/pro/swap?from=0x0000000000000000000000000000000000000000&to=0xedcad4bd04f59e8fcc7c5fc7547e5112ae9923df&chartReady=true"
)

// Config holds all application configuration.
type Config struct {
	// Explorer
	ExplorerBaseURL string
	TokenAddress    string
	TokenSymbol     string
	FetchTimeout    time.Duration

	// Ingestion
	SwapAddresses []string
	StartBlock    int64
	PageDelay     time.Duration
	MaxPages      int
	TopN          int

	// Storage
	StorageBackend string
	LedgerPath     string
	RankingsPath   string
	SQLitePath     string
	PostgresDSN    string

	// Optional mirrors and publishers
	ClickHouseDSN string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	NATSSubject   string
	NATSStream    string
	KafkaBrokers  []string
	KafkaTopic    string

	// Transport
	ServerAddr      string
	Cooldown        time.Duration
	TrustedProxies  []netip.Prefix
	RefreshSchedule string

	// Pricing
	PriceAPIURL   string
	NativeAddress string
	TotalSupply   decimal.Decimal
	BuyLink       string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and then the environment, and validates the result.
// Variables already set in the environment take precedence over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		ExplorerBaseURL: envOr("EXPLORER_BASE_URL", "https://api-cypress.klaytnscope.com/v2"),
		TokenAddress:    strings.ToLower(envOr("TOKEN_ADDRESS", defaultTokenAddress)),
		TokenSymbol:     envOr("TOKEN_SYMBOL", "MOODENG"),
		FetchTimeout:    p.duration("FETCH_TIMEOUT", 30*time.Second),

		SwapAddresses: splitTrim(envOr("SWAP_ADDRESSES", strings.Join(DefaultSwapAddresses, ","))),
		StartBlock:    p.int64("START_BLOCK", 167429702),
		PageDelay:     p.duration("PAGE_DELAY", 2500*time.Millisecond),
		MaxPages:      p.int("MAX_PAGES", 0),
		TopN:          p.int("TOP_N", 10),

		StorageBackend: strings.ToLower(envOr("STORAGE_BACKEND", BackendFile)),
		LedgerPath:     envOr("LEDGER_PATH", "transfers.json"),
		RankingsPath:   envOr("RANKINGS_PATH", "rankings.json"),
		SQLitePath:     envOr("SQLITE_PATH", "ranker.db"),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),

		ClickHouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.int("REDIS_DB", 0),
		NATSURL:       os.Getenv("NATS_URL"),
		NATSSubject:   envOr("NATS_SUBJECT", "rankings.snapshots"),
		NATSStream:    os.Getenv("NATS_STREAM"),
		KafkaBrokers:  splitTrim(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    envOr("KAFKA_TOPIC", "ranking-snapshots"),

		ServerAddr:      envOr("SERVER_ADDR", ":8080"),
		Cooldown:        p.duration("COOLDOWN", 60*time.Second),
		TrustedProxies:  p.prefixes("TRUSTED_PROXIES"),
		RefreshSchedule: os.Getenv("REFRESH_SCHEDULE"),

		PriceAPIURL:   envOr("PRICE_API_URL", "https://api.swapscanner.io/v1/tokens/prices"),
		NativeAddress: strings.ToLower(envOr("NATIVE_ADDRESS", "0x0000000000000000000000000000000000000000")),
		TotalSupply:   p.decimal("TOTAL_SUPPLY", decimal.NewFromInt(1_000_000_000)),
		BuyLink:       envOr("BUY_LINK", defaultBuyLink),

		LogLevel:  strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envOr("LOG_FORMAT", "console")),
	}

	errs := append(p.errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if errs := c.validate(); len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

func (c *Config) validate() []error {
	var errs []error

	if !common.IsHexAddress(c.TokenAddress) {
		errs = append(errs, fmt.Errorf("TOKEN_ADDRESS %q is not a hex address", c.TokenAddress))
	}
	if len(c.SwapAddresses) == 0 {
		errs = append(errs, fmt.Errorf("SWAP_ADDRESSES must list at least one address"))
	}
	for _, a := range c.SwapAddresses {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Errorf("SWAP_ADDRESSES entry %q is not a hex address", a))
		}
	}
	if !common.IsHexAddress(c.NativeAddress) {
		errs = append(errs, fmt.Errorf("NATIVE_ADDRESS %q is not a hex address", c.NativeAddress))
	}
	if c.StartBlock < 0 {
		errs = append(errs, fmt.Errorf("START_BLOCK must be >= 0"))
	}
	if c.PageDelay < 0 {
		errs = append(errs, fmt.Errorf("PAGE_DELAY must be >= 0"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive"))
	}
	if c.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("MAX_PAGES must be >= 0"))
	}
	if c.TopN < 1 {
		errs = append(errs, fmt.Errorf("TOP_N must be >= 1"))
	}
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("COOLDOWN must be >= 0"))
	}

	switch c.StorageBackend {
	case BackendFile:
		if c.LedgerPath == "" || c.RankingsPath == "" {
			errs = append(errs, fmt.Errorf("LEDGER_PATH and RANKINGS_PATH are required for the file backend"))
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("POSTGRES_DSN is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND %q is not one of file, sqlite, postgres, memory", c.StorageBackend))
	}

	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			errs = append(errs, fmt.Errorf("REFRESH_SCHEDULE %q: %w", c.RefreshSchedule, err))
		}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be console or json"))
	}

	return errs
}

// parser collects parse errors so that every invalid variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return i
}

func (p *parser) int64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return i
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func (p *parser) decimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return fallback
	}
	return d
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// prefixes reads a comma-separated list of IPs or CIDRs; a bare IP covers one address.
func (p *parser) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, v := range splitTrim(os.Getenv(key)) {
		if !strings.Contains(v, "/") {
			addr, err := netip.ParseAddr(v)
			if err != nil {
				p.errs = append(p.errs, fmt.Errorf("%s: invalid address %q", key, v))
				continue
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: invalid CIDR %q", key, v))
			continue
		}
		out = append(out, prefix.Masked())
	}
	return out
}

func splitTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
