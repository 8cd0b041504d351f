package audit

import (
	"context"
	"log/slog"
)

// FailureCounter counts audit events that never reached a sink.
type FailureCounter interface {
	IncrementAuditFailures()
}

type noopCounter struct{}

func (noopCounter) IncrementAuditFailures() {}

// Queue decouples request handlers from the audit sink. Publish never blocks:
// when the buffer is full the event is logged, counted and dropped.
type Queue struct {
	inbox    chan Event
	logger   *slog.Logger
	failures FailureCounter
}

type QueueOption func(*Queue)

// WithFailureCounter counts events dropped by the queue or lost by its worker.
func WithFailureCounter(c FailureCounter) QueueOption {
	return func(q *Queue) {
		if c != nil {
			q.failures = c
		}
	}
}

func NewQueue(size int, logger *slog.Logger, opts ...QueueOption) *Queue {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{inbox: make(chan Event, size), logger: logger, failures: noopCounter{}}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Publish(ctx context.Context, event Event) error {
	select {
	case q.inbox <- stamp(ctx, event):
	default:
		q.failures.IncrementAuditFailures()
		q.logger.WarnContext(ctx, "audit queue full, dropping event",
			"action", event.Action,
			"subject", event.Subject,
		)
	}
	return nil
}

// Worker drains a Queue into a sink until its context is cancelled, then
// flushes whatever is still buffered.
type Worker struct {
	sink     Publisher
	inbox    <-chan Event
	logger   *slog.Logger
	failures FailureCounter
}

func NewWorker(sink Publisher, q *Queue) *Worker {
	return &Worker{sink: sink, inbox: q.inbox, logger: q.logger, failures: q.failures}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case event := <-w.inbox:
			w.deliver(ctx, event)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case event := <-w.inbox:
			w.deliver(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event Event) {
	if err := w.sink.Publish(ctx, event); err != nil {
		w.failures.IncrementAuditFailures()
		w.logger.ErrorContext(ctx, "audit event lost",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
	}
}
