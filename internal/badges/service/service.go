// Package service implements credential anchoring: deriving addresses,
// guarding against duplicate issuance and reading badges back from the ledger.
//
// The ledger is the only source of truth. The service keeps no cache and holds
// no locks; concurrent duplicate issuance is resolved by the ledger's atomic
// create-if-absent.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"openbadges/internal/audit"
	"openbadges/internal/badges/metrics"
	"openbadges/internal/badges/models"
	"openbadges/internal/ledger"
	"openbadges/pkg/derivation"
	"openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/sentinel"
)

const (
	tracerName              = "openbadges/internal/badges/service"
	defaultBatchConcurrency = 4
	// MaxBatchSize caps a single batch issuance request.
	MaxBatchSize = 10
)

// Ledger is the subset of the ledger client the service depends on.
type Ledger interface {
	CreateIfAbsent(ctx context.Context, acct ledger.Account) error
	Read(ctx context.Context, addr domain.Address) (ledger.Account, error)
	Replace(ctx context.Context, acct ledger.Account) error
	CompareAndReplace(ctx context.Context, acct ledger.Account, expected json.RawMessage) error
	List(ctx context.Context, f ledger.Filter) ([]ledger.Account, int, error)
}

type AuditPublisher interface {
	Publish(ctx context.Context, event audit.Event) error
}

// Service orchestrates issuers, achievements and credentials.
type Service struct {
	ledger           Ledger
	engine           *derivation.Engine
	auditPublisher   AuditPublisher
	logger           *slog.Logger
	metrics          *metrics.Metrics
	tracer           trace.Tracer
	batchConcurrency int
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithBatchConcurrency bounds how many credentials of one batch are issued in
// parallel.
func WithBatchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

// New constructs a Service.
func New(l Ledger, engine *derivation.Engine, opts ...Option) *Service {
	s := &Service{
		ledger:           l,
		engine:           engine,
		logger:           slog.Default(),
		tracer:           otel.Tracer(tracerName),
		batchConcurrency: defaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveIssuerAddress derives the issuer profile address of an authority.
// It never touches the ledger.
func (s *Service) ResolveIssuerAddress(authority domain.Address) (domain.Address, error) {
	d, err := s.engine.Issuer(authority)
	if err != nil {
		return domain.Address{}, translateDerivation(err)
	}
	s.metrics.ObserveNonce(d.Nonce)
	return d.Address, nil
}

func (s *Service) ResolveAchievementAddress(issuer domain.Address, name string) (domain.Address, error) {
	d, err := s.engine.Achievement(issuer, name)
	if err != nil {
		return domain.Address{}, translateDerivation(err)
	}
	s.metrics.ObserveNonce(d.Nonce)
	return d.Address, nil
}

func (s *Service) ResolveCredentialAddress(achievement, issuer, recipient domain.Address) (domain.Address, error) {
	d, err := s.engine.Credential(achievement, issuer, recipient)
	if err != nil {
		return domain.Address{}, translateDerivation(err)
	}
	s.metrics.ObserveNonce(d.Nonce)
	return d.Address, nil
}

func translateDerivation(err error) error {
	switch {
	case errors.Is(err, derivation.ErrSeedTooLarge):
		return dErrors.Wrap(err, dErrors.CodeSeedTooLarge, "seed component exceeds 32 bytes")
	case errors.Is(err, derivation.ErrNoValidAddress):
		return dErrors.Wrap(err, dErrors.CodeNoValidAddress, "no valid address exists for these seeds")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "address derivation failed")
	}
}

// translateLedger maps infrastructure facts onto domain errors. Duplicate
// creation is handled by callers because its meaning depends on the record.
func translateLedger(err error, notFound string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, models.ErrWrongKind):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeChainUnavailable, "ledger unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger operation failed")
	}
}

func (s *Service) timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveLedgerLatency(op, time.Since(start))
	return err
}

func (s *Service) readAccount(ctx context.Context, addr domain.Address) (ledger.Account, error) {
	var acct ledger.Account
	err := s.timed("read", func() error {
		var err error
		acct, err = s.ledger.Read(ctx, addr)
		return err
	})
	return acct, err
}

func (s *Service) createAccount(ctx context.Context, acct ledger.Account) error {
	return s.timed("create", func() error {
		return s.ledger.CreateIfAbsent(ctx, acct)
	})
}

// emit publishes an audit event for a write that already committed. A
// failure is logged and counted but never reported to the caller.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Publish(ctx, event); err != nil {
		s.metrics.IncrementAuditFailures()
		s.logger.ErrorContext(ctx, "failed to publish audit event",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
	}
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}
