package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"openbadges/internal/audit"
	"openbadges/internal/badges/service"
	"openbadges/internal/ledger"
	"openbadges/internal/platform/config"
	"openbadges/internal/platform/kafka"
	"openbadges/internal/platform/postgres"
	"openbadges/internal/platform/redis"
	"openbadges/internal/ratelimit"
	"openbadges/pkg/platform/circuit"
)

// topicSetupTimeout bounds the admin call that creates the audit topic.
const topicSetupTimeout = 5 * time.Second

type ledgerBackend struct {
	ledger service.Ledger
	close  func()
}

// openLedger connects the configured ledger backend.
func openLedger(ctx context.Context, cfg *config.Config, log *slog.Logger) (ledgerBackend, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return ledgerBackend{}, err
		}
		return ledgerBackend{
			ledger: ledger.NewRedisLedger(client.Client, ledger.WithKeyPrefix(cfg.Redis.KeyPrefix)),
			close:  func() { _ = client.Close() },
		}, nil

	case config.LedgerPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return ledgerBackend{}, err
		}
		pg := ledger.NewPostgresLedger(db)
		if err := pg.Migrate(ctx); err != nil {
			_ = db.Close()
			return ledgerBackend{}, err
		}
		return ledgerBackend{ledger: pg, close: func() { _ = db.Close() }}, nil

	case config.LedgerSQLite:
		lite, err := ledger.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return ledgerBackend{}, err
		}
		return ledgerBackend{ledger: lite, close: func() { _ = lite.Close() }}, nil

	case config.LedgerMemory:
		log.Warn("using in-memory ledger; anchored state is lost on restart")
		return ledgerBackend{ledger: ledger.NewInMemoryLedger(), close: func() {}}, nil
	}
	return ledgerBackend{}, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
}

type auditSink struct {
	publisher audit.Publisher
	close     func()
}

// openAuditSink returns the Kafka publisher behind a circuit breaker with the
// log publisher as fallback, or just the log publisher when no brokers are
// configured.
func openAuditSink(ctx context.Context, cfg *config.Config, log *slog.Logger) (auditSink, error) {
	logSink := audit.NewLogPublisher(log)
	if len(cfg.Kafka.Brokers) == 0 {
		return auditSink{publisher: logSink, close: func() {}}, nil
	}

	client, err := kafka.NewClient(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return auditSink{}, err
	}
	if err := ensureTopic(ctx, client, cfg.Kafka); err != nil {
		client.Close()
		return auditSink{}, err
	}

	breaker := circuit.New("audit-kafka",
		circuit.WithFailureThreshold(cfg.Audit.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Audit.SuccessThreshold),
	)
	svc := audit.NewService(audit.NewKafkaPublisher(client, cfg.Kafka.Topic),
		audit.WithFallback(logSink),
		audit.WithBreaker(breaker),
		audit.WithLogger(log),
	)
	return auditSink{publisher: svc, close: client.Close}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, cfg config.KafkaConfig) error {
	ctx, cancel := context.WithTimeout(ctx, topicSetupTimeout)
	defer cancel()
	return audit.EnsureTopic(ctx, kadm.NewClient(client), cfg.Topic, cfg.Partitions, cfg.ReplicationFactor)
}

// openRateLimitStore shares windows through Redis when it is configured and
// keeps them in process otherwise.
func openRateLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.BucketStore, func(), error) {
	if cfg.Redis.URL == "" {
		return ratelimit.NewInMemoryBucketStore(), func() {}, nil
	}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return ratelimit.NewRedisBucketStore(client.Client, ""), func() { _ = client.Close() }, nil
}
