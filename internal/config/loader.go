package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TOSSR_* environment variable overrides, and
// returns the final Config. The caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from TOSSR_* variables that are
// set and non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Storage ──
	setStr(&cfg.Storage.Backend, "TOSSR_STORAGE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TOSSR_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TOSSR_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TOSSR_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TOSSR_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TOSSR_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TOSSR_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TOSSR_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TOSSR_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TOSSR_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TOSSR_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TOSSR_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TOSSR_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TOSSR_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TOSSR_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TOSSR_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TOSSR_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TOSSR_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TOSSR_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TOSSR_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TOSSR_S3_REGION")
	setStr(&cfg.S3.Bucket, "TOSSR_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TOSSR_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TOSSR_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TOSSR_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TOSSR_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TOSSR_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TOSSR_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TOSSR_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TOSSR_SERVER_API_KEY")
	setInt(&cfg.Server.EntriesPerMinute, "TOSSR_SERVER_ENTRIES_PER_MINUTE")
	setBool(&cfg.Server.FastPath.Enabled, "TOSSR_SERVER_FAST_PATH_ENABLED")
	setStr(&cfg.Server.FastPath.Secret, "TOSSR_SERVER_FAST_PATH_SECRET")
	setStringSlice(&cfg.Server.FastPath.Callers, "TOSSR_SERVER_FAST_PATH_CALLERS")
	setDuration(&cfg.Server.FastPath.MaxSkew, "TOSSR_SERVER_FAST_PATH_MAX_SKEW")

	// ── Attestation ──
	setStr(&cfg.Attestation.TrustedPubkey, "TOSSR_ATTESTATION_TRUSTED_PUBKEY")

	// ── Attestor ──
	setStr(&cfg.Attestor.URL, "TOSSR_ATTESTOR_URL")
	setInt(&cfg.Attestor.Port, "TOSSR_ATTESTOR_PORT")
	setStr(&cfg.Attestor.PrivateKey, "TOSSR_ATTESTOR_PRIVATE_KEY")
	setStr(&cfg.Attestor.EncryptedKeyPath, "TOSSR_ATTESTOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Attestor.KeyPassword, "TOSSR_ATTESTOR_KEY_PASSWORD")
	setStr(&cfg.Attestor.SensorAddr, "TOSSR_ATTESTOR_SENSOR_ADDR")
	setDuration(&cfg.Attestor.SensorTimeout, "TOSSR_ATTESTOR_SENSOR_TIMEOUT")
	setDuration(&cfg.Attestor.Timeout, "TOSSR_ATTESTOR_TIMEOUT")

	// ── Operator ──
	setBool(&cfg.Operator.Enabled, "TOSSR_OPERATOR_ENABLED")
	setStr(&cfg.Operator.Admin, "TOSSR_OPERATOR_ADMIN")
	setDuration(&cfg.Operator.TickInterval, "TOSSR_OPERATOR_TICK_INTERVAL")
	setDuration(&cfg.Operator.RoundDuration, "TOSSR_OPERATOR_ROUND_DURATION")
	setDuration(&cfg.Operator.StallTimeout, "TOSSR_OPERATOR_STALL_TIMEOUT")
	setDuration(&cfg.Operator.LockTTL, "TOSSR_OPERATOR_LOCK_TTL")
	setInt(&cfg.Operator.Concurrency, "TOSSR_OPERATOR_CONCURRENCY")
	setStr(&cfg.Operator.JournalCron, "TOSSR_OPERATOR_JOURNAL_CRON")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TOSSR_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TOSSR_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TOSSR_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TOSSR_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TOSSR_MODE")
	setStr(&cfg.LogLevel, "TOSSR_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
