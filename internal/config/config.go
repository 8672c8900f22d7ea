// Package config defines the top-level configuration for tossr and provides
// validation helpers.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TOSSR_* environment variables.
type Config struct {
	Storage     StorageConfig     `toml:"storage"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Attestation AttestationConfig `toml:"attestation"`
	Attestor    AttestorConfig    `toml:"attestor"`
	Operator    OperatorConfig    `toml:"operator"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When disabled, in-process
// replacements back the cache, locks, rate limits and event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled          bool           `toml:"enabled"`
	Port             int            `toml:"port"`
	CORSOrigins      []string       `toml:"cors_origins"`
	APIKey           string         `toml:"api_key"`
	EntriesPerMinute int            `toml:"entries_per_minute"`
	FastPath         FastPathConfig `toml:"fast_path"`
}

// FastPathConfig gates the low-latency reveal and randomness routes.
type FastPathConfig struct {
	Enabled bool     `toml:"enabled"`
	Secret  string   `toml:"secret"`
	Callers []string `toml:"callers"`
	MaxSkew duration `toml:"max_skew"`
}

// AttestationConfig holds the key the engine trusts for commitments.
type AttestationConfig struct {
	// TrustedPubkey is a hex uncompressed secp256k1 key. Empty selects the
	// built-in production key, or the local producer's key in "all" mode.
	TrustedPubkey string `toml:"trusted_pubkey"`
}

// AttestorConfig configures the attestation producer, either as a remote
// service (URL) or in-process (signing key).
type AttestorConfig struct {
	URL              string   `toml:"url"`
	Port             int      `toml:"port"`
	PrivateKey       string   `toml:"private_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	SensorAddr       string   `toml:"sensor_addr"`
	SensorTimeout    duration `toml:"sensor_timeout"`
	Timeout          duration `toml:"timeout"`
}

func (a AttestorConfig) hasKey() bool {
	return a.PrivateKey != "" || a.EncryptedKeyPath != ""
}

// OperatorConfig drives the background round lifecycle jobs.
type OperatorConfig struct {
	Enabled       bool     `toml:"enabled"`
	Admin         string   `toml:"admin"`
	TickInterval  duration `toml:"tick_interval"`
	RoundDuration duration `toml:"round_duration"`
	StallTimeout  duration `toml:"stall_timeout"`
	LockTTL       duration `toml:"lock_ttl"`
	Concurrency   int      `toml:"concurrency"`
	JournalCron   string   `toml:"journal_cron"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{Backend: "memory"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tossr",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tossr-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8080,
			EntriesPerMinute: 30,
			FastPath: FastPathConfig{
				MaxSkew: duration{30 * time.Second},
			},
		},
		Attestor: AttestorConfig{
			Port:          8081,
			SensorTimeout: duration{2 * time.Second},
			Timeout:       duration{10 * time.Second},
		},
		Operator: OperatorConfig{
			TickInterval:  duration{2 * time.Second},
			RoundDuration: duration{60 * time.Second},
			StallTimeout:  duration{5 * time.Minute},
			LockTTL:       duration{30 * time.Second},
			Concurrency:   4,
			JournalCron:   "10 0 * * *",
		},
		Notify: NotifyConfig{
			Events: []string{"round_settled", "jackpot_claimed", "operator_error"},
		},
		Mode:     "engine",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine":   true,
	"attestor": true,
	"all":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsEngine reports whether the mode serves the engine API and operator.
func (c *Config) RunsEngine() bool {
	m := strings.ToLower(c.Mode)
	return m == "engine" || m == "all"
}

// RunsAttestor reports whether the mode serves the attestor HTTP API.
func (c *Config) RunsAttestor() bool {
	m := strings.ToLower(c.Mode)
	return m == "attestor" || m == "all"
}

// Validate checks every section and returns all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, attestor, all)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Storage
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: memory, postgres)", c.Storage.Backend))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled && c.RunsEngine() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.EntriesPerMinute < 0 {
			errs = append(errs, "server: entries_per_minute must be >= 0")
		}
		if fp := c.Server.FastPath; fp.Enabled {
			if fp.Secret == "" {
				errs = append(errs, "server.fast_path: secret is required when enabled")
			}
			if len(fp.Callers) == 0 {
				errs = append(errs, "server.fast_path: at least one caller is required when enabled")
			}
		}
	}

	// Attestation
	if pk := c.Attestation.TrustedPubkey; pk != "" {
		raw, err := hex.DecodeString(strings.TrimPrefix(pk, "0x"))
		if err != nil || len(raw) != 65 {
			errs = append(errs, "attestation: trusted_pubkey must be a 65-byte uncompressed key in hex")
		}
	}

	// Attestor
	if c.RunsAttestor() {
		if !c.Attestor.hasKey() {
			errs = append(errs, "attestor: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Attestor.Port <= 0 || c.Attestor.Port > 65535 {
			errs = append(errs, fmt.Sprintf("attestor: port must be 1-65535, got %d", c.Attestor.Port))
		}
	}
	if c.Attestor.EncryptedKeyPath != "" && c.Attestor.KeyPassword == "" {
		errs = append(errs, "attestor: key_password is required when encrypted_key_path is set")
	}

	// Operator
	if c.Operator.Enabled && c.RunsEngine() {
		if c.Operator.Admin == "" {
			errs = append(errs, "operator: admin must not be empty")
		}
		if c.Attestor.URL == "" && !c.Attestor.hasKey() {
			errs = append(errs, "operator: attestor.url or an attestor signing key is required")
		}
		if c.Operator.Concurrency < 1 {
			errs = append(errs, "operator: concurrency must be >= 1")
		}
		if cron := c.Operator.JournalCron; cron != "" && len(strings.Fields(cron)) != 5 {
			errs = append(errs, fmt.Sprintf("operator: journal_cron %q must have 5 fields", cron))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
