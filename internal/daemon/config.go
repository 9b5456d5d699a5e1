// Package daemon wires the Lynks server together: configuration, storage,
// the settlement engine and its background workers.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/lynks-network/lynks/internal/app/purge"
	"github.com/lynks-network/lynks/internal/domain"
	"github.com/lynks-network/lynks/internal/infra/observability"
)

// Config is the full daemon configuration, read from config.toml and then
// overridden by LYNKS_* environment variables.
type Config struct {
	DataDir string `toml:"data_dir" env:"LYNKS_DATA_DIR"`

	API        APIConfig                  `toml:"api"`
	Settlement SettlementConfig           `toml:"settlement"`
	Sweeper    SweeperConfig              `toml:"sweeper"`
	Purge      PurgeConfig                `toml:"purge"`
	Telemetry  observability.TracerConfig `toml:"telemetry"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host           string `toml:"host" env:"LYNKS_API_HOST"`
	Port           int    `toml:"port" env:"LYNKS_API_PORT"`
	RequestTimeout string `toml:"request_timeout" env:"LYNKS_API_REQUEST_TIMEOUT"`
	CronSecret     string `toml:"cron_secret" env:"LYNKS_CRON_SECRET"`
	Metrics        bool   `toml:"metrics" env:"LYNKS_METRICS"`
}

// Addr returns host:port.
func (c APIConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// SettlementConfig holds the marketplace rules.
type SettlementConfig struct {
	PostingFee         int64  `toml:"posting_fee" env:"LYNKS_POSTING_FEE"`
	StandardReward     int64  `toml:"standard_reward" env:"LYNKS_STANDARD_REWARD"`
	DailyPostCap       int    `toml:"daily_post_cap" env:"LYNKS_DAILY_POST_CAP"`
	DefaultCap         int    `toml:"default_submission_cap" env:"LYNKS_DEFAULT_SUBMISSION_CAP"`
	AutoApproveTimeout string `toml:"auto_approve_timeout" env:"LYNKS_AUTO_APPROVE_TIMEOUT"`
	SignupGrant        int64  `toml:"signup_grant" env:"LYNKS_SIGNUP_GRANT"`
	MaxProofBytes      int64  `toml:"max_proof_bytes" env:"LYNKS_MAX_PROOF_BYTES"`
	Timezone           string `toml:"timezone" env:"LYNKS_TIMEZONE"`
}

// SweeperConfig controls the in-process auto-approval sweeper.
type SweeperConfig struct {
	Enabled  bool   `toml:"enabled" env:"LYNKS_SWEEPER_ENABLED"`
	Interval string `toml:"interval" env:"LYNKS_SWEEPER_INTERVAL"`
}

// PurgeConfig controls the proof purge worker.
type PurgeConfig struct {
	Enabled      bool   `toml:"enabled" env:"LYNKS_PURGE_ENABLED"`
	PollInterval string `toml:"poll_interval" env:"LYNKS_PURGE_POLL_INTERVAL"`
	MaxAttempts  int    `toml:"max_attempts" env:"LYNKS_PURGE_MAX_ATTEMPTS"`
	RetryBackoff string `toml:"retry_backoff" env:"LYNKS_PURGE_RETRY_BACKOFF"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	p := domain.DefaultPolicy()
	return Config{
		DataDir: defaultDataDir(),
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8420,
			RequestTimeout: "30s",
			Metrics:        true,
		},
		Settlement: SettlementConfig{
			PostingFee:         p.PostingFee,
			StandardReward:     p.StandardReward,
			DailyPostCap:       p.DailyPostCap,
			DefaultCap:         p.DefaultCap,
			AutoApproveTimeout: p.AutoApproveTimeout.String(),
			SignupGrant:        p.SignupGrant,
			MaxProofBytes:      p.MaxProofBytes,
			Timezone:           "Local",
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: "5m",
		},
		Purge: PurgeConfig{
			Enabled:      true,
			PollInterval: "30s",
			MaxAttempts:  8,
			RetryBackoff: "30s",
		},
		Telemetry: observability.DefaultTracerConfig(),
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".lynks")
	}
	return ".lynks"
}

// LoadConfig reads path over the defaults and applies environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by decoding.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	for name, v := range map[string]string{
		"api.request_timeout":             c.API.RequestTimeout,
		"settlement.auto_approve_timeout": c.Settlement.AutoApproveTimeout,
		"sweeper.interval":                c.Sweeper.Interval,
		"purge.poll_interval":             c.Purge.PollInterval,
		"purge.retry_backoff":             c.Purge.RetryBackoff,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("%s: invalid duration %q", name, v)
		}
	}
	if _, err := c.location(); err != nil {
		return err
	}
	if c.Settlement.StandardReward <= 0 {
		return fmt.Errorf("settlement.standard_reward must be positive")
	}
	if c.Settlement.DefaultCap <= 0 || c.Settlement.DailyPostCap <= 0 {
		return fmt.Errorf("settlement caps must be positive")
	}
	if c.Settlement.PostingFee < 0 || c.Settlement.SignupGrant < 0 {
		return fmt.Errorf("settlement amounts cannot be negative")
	}
	return nil
}

func (c Config) location() (*time.Location, error) {
	tz := c.Settlement.Timezone
	if tz == "" {
		tz = "Local"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("settlement.timezone: %w", err)
	}
	return loc, nil
}

// mustDuration parses a duration already checked by Validate.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Policy converts the settlement section into engine rules.
func (c Config) Policy() domain.Policy {
	loc, err := c.location()
	if err != nil {
		loc = time.Local
	}
	s := c.Settlement
	return domain.Policy{
		PostingFee:         s.PostingFee,
		StandardReward:     s.StandardReward,
		DailyPostCap:       s.DailyPostCap,
		DefaultCap:         s.DefaultCap,
		AutoApproveTimeout: mustDuration(s.AutoApproveTimeout),
		SignupGrant:        s.SignupGrant,
		MaxProofBytes:      s.MaxProofBytes,
		Location:           loc,
	}
}

// PurgeWorkerConfig converts the purge section into worker settings.
func (c Config) PurgeWorkerConfig() purge.Config {
	cfg := purge.DefaultConfig()
	cfg.PollInterval = mustDuration(c.Purge.PollInterval)
	cfg.RetryBackoff = mustDuration(c.Purge.RetryBackoff)
	if c.Purge.MaxAttempts > 0 {
		cfg.MaxAttempts = c.Purge.MaxAttempts
	}
	return cfg
}

// DBDir is where the SQLite database lives.
func (c Config) DBDir() string { return c.DataDir }

// BlobDir is where proof uploads are stored.
func (c Config) BlobDir() string { return filepath.Join(c.DataDir, "proofs") }
