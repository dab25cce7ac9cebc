// Package config loads waker and CLI configuration from a YAML file, a .env
// file and DDCA_* environment variables, in increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/logging"
	"solana-ddca/internal/solana"
)

// Ledger sources the waker can reconcile against.
const (
	SourceChain    = "chain"
	SourcePostgres = "postgres"
	SourceMemory   = "memory"
)

// Config is the root configuration.
type Config struct {
	Log        logging.Config   `yaml:"log"`
	Solana     SolanaConfig     `yaml:"solana"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Waker      WakerConfig      `yaml:"waker"`
	HTTP       HTTPConfig       `yaml:"http"`
	Plans      []PlanSeed       `yaml:"plans"`
}

// SolanaConfig configures RPC access.
type SolanaConfig struct {
	RPCURL       string  `yaml:"rpc_url"`
	WSURL        string  `yaml:"ws_url"`
	ProgramID    string  `yaml:"program_id"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	RateBurst    int     `yaml:"rate_burst"`
	Timeout      string  `yaml:"timeout"`
}

// PostgresConfig configures the plan ledger and execution history.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// ClickHouseConfig configures the optional execution analytics sink.
type ClickHouseConfig struct {
	DSN string `yaml:"dsn"`
}

// WakerConfig configures the waker loop.
type WakerConfig struct {
	Source      string `yaml:"source"`
	Schedule    string `yaml:"schedule"`
	Concurrency int    `yaml:"concurrency"`
	SwapTimeout string `yaml:"swap_timeout"`
	DryRun      bool   `yaml:"dry_run"`
}

// PlanSeed is a plan the memory source creates when it opens. Seeded plans
// start at the time the source is opened.
type PlanSeed struct {
	Owner         string `yaml:"owner"`
	FromMint      string `yaml:"from_mint"`
	ToMint        string `yaml:"to_mint"`
	AmountPerSwap uint64 `yaml:"amount_per_swap"`
	Interval      string `yaml:"interval"`
	Deposit       uint64 `yaml:"deposit"`
}

// Params converts the seed into plan creation parameters.
func (p PlanSeed) Params() (domain.PlanParams, error) {
	interval, err := ParseDurationField("interval", p.Interval)
	if err != nil {
		return domain.PlanParams{}, err
	}
	if interval%time.Second != 0 {
		return domain.PlanParams{}, fmt.Errorf("interval: %s is not a whole number of seconds", interval)
	}
	params := domain.PlanParams{
		Owner:           p.Owner,
		FromMint:        p.FromMint,
		ToMint:          p.ToMint,
		AmountPerSwap:   p.AmountPerSwap,
		IntervalSeconds: int64(interval / time.Second),
		InitialDeposit:  p.Deposit,
	}
	if err := domain.ValidatePlanParams(params); err != nil {
		return domain.PlanParams{}, err
	}
	return params, nil
}

// HTTPConfig configures the health, metrics and status listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: logging.Config{Level: "info"},
		Solana: SolanaConfig{
			RPCURL:       "https://api.mainnet-beta.solana.com",
			RateLimitRPS: 10,
			RateBurst:    5,
			Timeout:      "30s",
		},
		Waker: WakerConfig{
			Source:      SourceChain,
			Schedule:    "@every 15s",
			Concurrency: 4,
			SwapTimeout: "60s",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeYAML decodes data into cfg, rejecting unknown keys.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from DDCA_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("DDCA_LOG_LEVEL", &c.Log.Level)
	str("DDCA_SOLANA_RPC_URL", &c.Solana.RPCURL)
	str("DDCA_SOLANA_WS_URL", &c.Solana.WSURL)
	str("DDCA_PROGRAM_ID", &c.Solana.ProgramID)
	str("DDCA_POSTGRES_DSN", &c.Postgres.DSN)
	str("DDCA_CLICKHOUSE_DSN", &c.ClickHouse.DSN)
	str("DDCA_WAKER_SOURCE", &c.Waker.Source)
	str("DDCA_WAKER_SCHEDULE", &c.Waker.Schedule)
	str("DDCA_HTTP_ADDR", &c.HTTP.Addr)

	if v, ok := lookup("DDCA_LOG_CONSOLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DDCA_LOG_CONSOLE: %w", err)
		}
		c.Log.Console = b
	}
	if v, ok := lookup("DDCA_WAKER_DRY_RUN"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DDCA_WAKER_DRY_RUN: %w", err)
		}
		c.Waker.DryRun = b
	}
	if v, ok := lookup("DDCA_WAKER_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DDCA_WAKER_CONCURRENCY: %w", err)
		}
		c.Waker.Concurrency = n
	}
	return nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := c.Solana.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Waker.SwapTimeoutDuration(); err != nil {
		return err
	}
	if c.Solana.RateLimitRPS < 0 {
		return fmt.Errorf("solana.rate_limit_rps must be >= 0")
	}
	if c.Waker.Concurrency < 1 {
		return fmt.Errorf("waker.concurrency must be >= 1, got %d", c.Waker.Concurrency)
	}
	if strings.TrimSpace(c.Waker.Schedule) == "" {
		return fmt.Errorf("waker.schedule is required")
	}

	switch c.Waker.Source {
	case SourceChain, SourcePostgres, SourceMemory:
	default:
		return fmt.Errorf("waker.source must be one of %s, %s, %s; got %q",
			SourceChain, SourcePostgres, SourceMemory, c.Waker.Source)
	}

	if c.Solana.ProgramID != "" {
		if _, err := solana.ParsePubkey(c.Solana.ProgramID); err != nil {
			return fmt.Errorf("solana.program_id: %w", err)
		}
	}

	for i, p := range c.Plans {
		if _, err := p.Params(); err != nil {
			return fmt.Errorf("plans[%d]: %w", i, err)
		}
	}
	return nil
}

// RequireSource checks the settings a command needs to open source.
// Every source derives plan addresses, so all of them need the program ID.
func (c *Config) RequireSource(source string) error {
	switch source {
	case SourceChain:
		if c.Solana.RPCURL == "" {
			return fmt.Errorf("solana.rpc_url is required for source %q", SourceChain)
		}
	case SourcePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for source %q", SourcePostgres)
		}
	case SourceMemory:
		if len(c.Plans) == 0 {
			return fmt.Errorf("plans are required for source %q", SourceMemory)
		}
	default:
		return fmt.Errorf("unknown source %q", source)
	}
	if c.Solana.ProgramID == "" {
		return fmt.Errorf("solana.program_id is required for source %q", source)
	}
	return nil
}

// ProgramPubkey returns the parsed program ID.
func (c *Config) ProgramPubkey() (solana.Pubkey, error) {
	return solana.ParsePubkey(c.Solana.ProgramID)
}

// TimeoutDuration parses the RPC timeout, defaulting to 30s.
func (s SolanaConfig) TimeoutDuration() (time.Duration, error) {
	return ParseDurationOrDefault("solana.timeout", s.Timeout, 30*time.Second)
}

// SwapTimeoutDuration parses the per-swap timeout, defaulting to 60s.
func (w WakerConfig) SwapTimeoutDuration() (time.Duration, error) {
	return ParseDurationOrDefault("waker.swap_timeout", w.SwapTimeout, 60*time.Second)
}

// LoadEnvFile sets variables from a KEY=VALUE file without overriding the
// existing environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read env file %s: %w", path, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		if _, exists := os.LookupEnv(key); !exists {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	return nil
}
