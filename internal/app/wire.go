package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chigozzdevv/tossr/internal/attestor"
	s3blob "github.com/chigozzdevv/tossr/internal/blob/s3"
	"github.com/chigozzdevv/tossr/internal/cache/local"
	"github.com/chigozzdevv/tossr/internal/cache/redis"
	"github.com/chigozzdevv/tossr/internal/config"
	"github.com/chigozzdevv/tossr/internal/crypto"
	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/notify"
	"github.com/chigozzdevv/tossr/internal/store/memory"
	"github.com/chigozzdevv/tossr/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Ledger       domain.Ledger
	Attestations domain.AttestationStore
	Audit        domain.AuditStore

	// Caches; RoundCache is nil without redis.
	RoundCache  domain.RoundCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Archiver is nil when s3 is disabled.
	Archiver *s3blob.RoundArchiver

	// Producer and Streaks are set when a signing key is configured.
	Producer *attestor.Producer
	Streaks  *attestor.StreakStore
	Verifier *crypto.Verifier

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Streaks: attestor.NewStreakStore()}

	// --- Ledger ---
	if cfg.RunsEngine() {
		switch cfg.Storage.Backend {
		case "postgres":
			pgClient, err := postgres.New(ctx, postgres.ClientConfig{
				DSN:      cfg.Postgres.DSN,
				Host:     cfg.Postgres.Host,
				Port:     cfg.Postgres.Port,
				Database: cfg.Postgres.Database,
				User:     cfg.Postgres.User,
				Password: cfg.Postgres.Password,
				SSLMode:  cfg.Postgres.SSLMode,
				MaxConns: cfg.Postgres.PoolMaxConns,
				MinConns: cfg.Postgres.PoolMinConns,
			})
			if err != nil {
				return fail(fmt.Errorf("wire: postgres: %w", err))
			}
			closers = append(closers, pgClient.Close)

			if cfg.Postgres.RunMigrations {
				if err := pgClient.RunMigrations(ctx); err != nil {
					return fail(fmt.Errorf("wire: postgres migrations: %w", err))
				}
			}
			deps.Ledger = pgClient.Ledger()
			deps.Attestations = pgClient.Attestations()
			deps.Audit = pgClient.Audit()
		default:
			logger.WarnContext(ctx, "wire: using in-memory ledger; state is lost on restart")
			deps.Ledger = memory.NewLedger()
			deps.Attestations = memory.NewAttestationStore()
			deps.Audit = memory.NewAuditStore()
		}
	}

	// --- Redis, or in-process equivalents ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RoundCache = redis.NewRoundCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		deps.RateLimiter = local.NewRateLimiter()
		deps.LockManager = local.NewLockManager()
		deps.SignalBus = local.NewBus()
	}

	// --- S3 archival ---
	if cfg.S3.Enabled && cfg.RunsEngine() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), deps.Audit)
	}

	// --- Attestation producer and verifier ---
	if cfg.Attestor.PrivateKey != "" || cfg.Attestor.EncryptedKeyPath != "" {
		signer, err := crypto.LoadSigner(crypto.KeySource{
			RawPrivateKey:    cfg.Attestor.PrivateKey,
			EncryptedKeyPath: cfg.Attestor.EncryptedKeyPath,
			KeyPassword:      cfg.Attestor.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: attestor key: %w", err))
		}
		var sensor attestor.EntropySource
		if cfg.Attestor.SensorAddr != "" {
			sensor = attestor.NewTCPSensor(cfg.Attestor.SensorAddr, cfg.Attestor.SensorTimeout.Duration, logger)
		}
		deps.Producer = attestor.NewProducer(signer, sensor, logger)
	}

	verifier, err := newVerifier(cfg, deps.Producer)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Verifier = verifier

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// newVerifier trusts the configured key. Without one, "all" mode trusts its
// own producer and every other mode the built-in production key.
func newVerifier(cfg *config.Config, producer *attestor.Producer) (*crypto.Verifier, error) {
	if cfg.Attestation.TrustedPubkey == "" && producer != nil && cfg.RunsAttestor() {
		return crypto.NewVerifier(producer.PublicKey())
	}
	return crypto.NewVerifierFromHex(cfg.Attestation.TrustedPubkey)
}
