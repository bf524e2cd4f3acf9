// Package config loads the relay configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Network is a human-readable chain label reported by /health.
	Network string `env:"NETWORK" envDefault:"sepolia"`

	// CORSAllowedOrigins is a comma-separated allowlist. Empty disables
	// cross-origin access.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// RealSendEnabled switches execution from simulated completion to a
	// real native-asset transfer.
	RealSendEnabled bool `env:"REAL_SEND_ENABLED" envDefault:"false"`

	// RPCURL is the EVM JSON-RPC endpoint used for real payouts.
	RPCURL string `env:"RPC_URL"`

	// RelayerKeyRef is the signing credential reference: aws:<secret-id>,
	// env:<VAR>, or a literal hex key.
	RelayerKeyRef string `env:"RELAYER_KEY_REF"`

	ChainID        uint64 `env:"CHAIN_ID" envDefault:"11155111"`
	NativeDecimals int    `env:"NATIVE_DECIMALS" envDefault:"18"`

	// ExplorerTxPrefix is string-concatenated with the tx hash to form
	// explorer URLs.
	ExplorerTxPrefix string `env:"EXPLORER_TX_PREFIX"`

	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"900s"`
	ProofTTL      time.Duration `env:"PROOF_TTL" envDefault:"1800s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`

	RateLimitPerMinute     int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	RateLimitMaxTrackedIPs int `env:"RATE_LIMIT_MAX_TRACKED_IPS" envDefault:"10000"`

	// ExecuteTimeout bounds the broadcast plus one-confirmation wait.
	ExecuteTimeout      time.Duration `env:"EXECUTE_TIMEOUT" envDefault:"3m"`
	ReceiptPollInterval time.Duration `env:"RECEIPT_POLL_INTERVAL" envDefault:"2s"`
	GasLimitMultiplier  float64       `env:"GAS_LIMIT_MULTIPLIER" envDefault:"1.2"`
	MinTipGwei          int64         `env:"MIN_TIP_GWEI" envDefault:"1"`

	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`

	// PostgresDSN selects the persistent job store; empty keeps jobs in
	// memory (lost on restart).
	PostgresDSN string `env:"POSTGRES_DSN"`

	// RedisURL selects the Redis session/proof registry backend; empty
	// keeps the swept in-memory registry.
	RedisURL string `env:"REDIS_URL"`

	// QueueBrokers enables job lifecycle events when non-empty.
	QueueDriver   string   `env:"QUEUE_DRIVER" envDefault:"kafka"`
	QueueBrokers  []string `env:"QUEUE_BROKERS" envSeparator:","`
	JobEventTopic string   `env:"JOB_EVENT_TOPIC" envDefault:"bridge.jobs.v1"`

	// ArchiveBucket enables S3 archiving of accepted proof submissions.
	ArchiveBucket string `env:"ARCHIVE_BUCKET"`
	ArchivePrefix string `env:"ARCHIVE_PREFIX" envDefault:"relay"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize clamps values that would otherwise wedge the service.
func (c *Config) Sanitize() {
	if c.NativeDecimals < 0 || c.NativeDecimals > 32 {
		c.NativeDecimals = 18
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 900 * time.Second
	}
	if c.ProofTTL <= 0 {
		c.ProofTTL = 1800 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 120
	}
	if c.RateLimitMaxTrackedIPs <= 0 {
		c.RateLimitMaxTrackedIPs = 10_000
	}
	if c.ExecuteTimeout <= 0 {
		c.ExecuteTimeout = 3 * time.Minute
	}
	if c.ReceiptPollInterval <= 0 {
		c.ReceiptPollInterval = 2 * time.Second
	}
	if c.GasLimitMultiplier <= 0 {
		c.GasLimitMultiplier = 1.2
	}
	if c.MinTipGwei < 0 {
		c.MinTipGwei = 1
	}
}

// Validate rejects combinations the service cannot start with. Real-mode
// payout credentials are deliberately not required here: a missing RPC or
// key surfaces as a per-job configuration failure, not a startup error.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: LISTEN_ADDR must be non-empty")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("config: CHAIN_ID must be > 0")
	}
	if c.ReadHeaderTimeout <= 0 || c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		return fmt.Errorf("config: http timeouts must be > 0")
	}
	return nil
}
