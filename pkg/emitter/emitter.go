// Copyright 2025 Certen Protocol
//
// Anchor Event Emitter
//
// Signals downstream workers that a READY batch exists, tagging each signal
// with a fresh globally-unique id. Runs as a single pass invoked on a cron
// cadence (cmd/emit-anchor-event), not a long-lived loop: it either expires
// stale READY requests back to PENDING (forward progress after a lost
// batch) or promotes new PENDING requests to READY, and emits once if
// either step produced anything.

package emitter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/certen/cas/pkg/castypes"
	"github.com/certen/cas/pkg/database"
)

// Event is the signal published when a READY batch becomes available.
type Event struct {
	ID        uuid.UUID
	ReadyCount int64
}

// Sink delivers an emitted event to whatever is listening for READY
// batches. The default LogSink just logs; production wiring can swap in a
// message broker without touching EmitIfReady's logic.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// LogSink emits by logging, the default when no broker is wired.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink builds a Sink that logs every emitted event.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.New(log.Writer(), "[Emitter] ", log.LstdFlags)
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event Event) error {
	s.logger.Printf("anchor event %s: %d ready requests", event.ID, event.ReadyCount)
	return nil
}

// Config bounds a single EmitIfReady pass.
type Config struct {
	// MaxStreamLimit bounds findAndMarkReady when no READY requests
	// already exist. MinStreamLimit does not bound it: a promotion below
	// MinStreamLimit is logged and still emitted.
	MaxStreamLimit int
	MinStreamLimit int
	// ReadyExpiry is how long a request may sit READY before it is
	// considered stranded and demoted back to PENDING.
	ReadyExpiry time.Duration
}

// Emitter wraps the request repository and a Sink to run one
// emitIfReady pass.
type Emitter struct {
	requests *database.RequestRepository
	sink     Sink
	cfg      Config
	logger   *log.Logger
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Emitter) { e.logger = logger }
}

// WithSink overrides the default LogSink.
func WithSink(sink Sink) Option {
	return func(e *Emitter) { e.sink = sink }
}

// New builds an Emitter over a request repository.
func New(requests *database.RequestRepository, cfg Config, opts ...Option) *Emitter {
	e := &Emitter{
		requests: requests,
		cfg:      cfg,
		logger:   log.New(log.Writer(), "[Emitter] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = NewLogSink(e.logger)
	}
	return e
}

// EmitIfReady runs one pass of the anchor event emitter: it first tries to
// expire stale READY requests back to PENDING (giving a lost batch's
// requests forward progress), and only promotes new PENDING requests to
// READY when there was nothing already READY to expire. It emits at most
// one event per call.
func (e *Emitter) EmitIfReady(ctx context.Context) error {
	readyCount, err := e.requests.CountByStatus(ctx, castypes.RequestStatusReady)
	if err != nil {
		return fmt.Errorf("emitIfReady: count ready requests: %w", err)
	}

	if readyCount > 0 {
		expired, err := e.requests.UpdateExpiringReadyRequests(ctx, e.cfg.ReadyExpiry)
		if err != nil {
			return fmt.Errorf("emitIfReady: expire ready requests: %w", err)
		}
		if expired == 0 {
			return nil
		}
		return e.emit(ctx, expired)
	}

	promoted, err := e.requests.FindAndMarkReady(ctx, e.cfg.MaxStreamLimit)
	if err != nil {
		return fmt.Errorf("emitIfReady: find and mark ready: %w", err)
	}
	if len(promoted) == 0 {
		return nil
	}
	if len(promoted) < e.cfg.MinStreamLimit {
		e.logger.Printf("promoted %d requests, below minStreamLimit %d; emitting anyway so the expiry path can retry", len(promoted), e.cfg.MinStreamLimit)
	}
	return e.emit(ctx, int64(len(promoted)))
}

func (e *Emitter) emit(ctx context.Context, count int64) error {
	event := Event{ID: uuid.New(), ReadyCount: count}
	if err := e.sink.Emit(ctx, event); err != nil {
		// Event-emission failures are logged and swallowed: a subsequent
		// invocation re-emits when READY expiries trip.
		e.logger.Printf("failed to emit anchor event %s: %v", event.ID, err)
		return nil
	}
	return nil
}

