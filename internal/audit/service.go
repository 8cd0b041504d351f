package audit

import (
	"context"
	"fmt"
	"log/slog"

	"openbadges/pkg/platform/circuit"
)

// Service stamps events with request metadata and routes them to the primary
// sink, switching to the fallback sink while the primary's circuit is open.
type Service struct {
	primary  Publisher
	fallback Publisher
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Service)

// WithFallback sets the sink used while the primary is failing.
func WithFallback(p Publisher) Option {
	return func(s *Service) {
		s.fallback = p
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		if b != nil {
			s.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(primary Publisher, opts ...Option) *Service {
	s := &Service{
		primary: primary,
		breaker: circuit.New("audit"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish delivers one event. The primary is always tried; once its circuit
// opens, failed deliveries go to the fallback until enough successes close it.
func (s *Service) Publish(ctx context.Context, event Event) error {
	event = stamp(ctx, event)

	err := s.primary.Publish(ctx, event)
	if err == nil {
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "audit sink recovered", "breaker", s.breaker.Name())
		}
		return nil
	}

	useFallback, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.WarnContext(ctx, "audit sink circuit opened", "breaker", s.breaker.Name(), "error", err)
	}
	if !useFallback || s.fallback == nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	if ferr := s.fallback.Publish(ctx, event); ferr != nil {
		return fmt.Errorf("publish audit event to fallback: %w", ferr)
	}
	return nil
}
