// Package runner pulls item batches from a NATS JetStream consumer and
// drives each batch through the iteration engine under a configured
// concurrency policy, with per-batch tracing and optional run reports.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/internal/tracing"
	apperrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/iterate"
	"github.com/wehubfusion/Daedalus/pkg/sequence"
	"github.com/wehubfusion/Daedalus/pkg/storage"
)

// Handler processes one message of a batch. index is the message's position
// within its batch; handlers run concurrently according to the runner's
// MaxConcurrent setting.
type Handler func(ctx context.Context, msg *nats.Msg, index int) error

// Config holds the stream and processing configuration for a Runner.
type Config struct {
	// Stream is the JetStream stream name. Created if it does not exist.
	Stream string

	// Consumer is the durable consumer name used for pulls.
	Consumer string

	// BatchSize is how many messages to pull at once.
	BatchSize int

	// MaxConcurrent is the engine concurrency sentinel applied per batch:
	// 0 unbounded, 1 serial, otherwise bounded to that many workers.
	MaxConcurrent int

	// ProcessTimeout bounds the processing of a single batch.
	ProcessTimeout time.Duration
}

// Puller abstracts batch retrieval so processing can be exercised without a
// live JetStream connection.
type Puller interface {
	Pull(ctx context.Context, batch int) ([]*nats.Msg, error)
}

// Runner manages concurrent batch processing from a NATS JetStream consumer.
type Runner struct {
	puller          Puller
	handler         Handler
	cfg             Config
	logger          *zap.Logger
	tracer          trace.Tracer
	reports         *storage.ReportWriter
	tracingShutdown func(context.Context) error
}

// Option configures optional runner behavior.
type Option func(*Runner)

// WithReportWriter persists a run report for every processed batch.
func WithReportWriter(w *storage.ReportWriter) Option {
	return func(r *Runner) { r.reports = w }
}

// WithPuller replaces the JetStream puller; used by tests and by callers
// that source batches from somewhere other than a durable consumer.
func WithPuller(p Puller) Option {
	return func(r *Runner) { r.puller = p }
}

// NewRunner creates a Runner on an already connected NATS connection.
// tracingConfig is optional; when provided, tracing is set up and torn down
// with the runner.
func NewRunner(conn *nats.Conn, cfg Config, handler Handler, logger *zap.Logger, tracingConfig *tracing.Config, opts ...Option) (*Runner, error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if cfg.Stream == "" {
		return nil, errors.New("stream name cannot be empty")
	}
	if cfg.Consumer == "" {
		return nil, errors.New("consumer name cannot be empty")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("batch size must be greater than 0")
	}
	if cfg.MaxConcurrent < 0 {
		return nil, apperrors.ErrNegativeConcurrency
	}
	if cfg.ProcessTimeout <= 0 {
		return nil, errors.New("process timeout must be greater than 0")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	runner := &Runner{
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer("daedalus/runner"),
	}
	for _, opt := range opts {
		opt(runner)
	}

	if runner.puller == nil {
		if conn == nil {
			return nil, errors.New("connection cannot be nil")
		}
		js, err := conn.JetStream()
		if err != nil {
			return nil, fmt.Errorf("JetStream context is not available: %w", err)
		}
		if err := ensureStream(js, cfg.Stream, logger); err != nil {
			return nil, fmt.Errorf("failed to ensure stream %q exists: %w", cfg.Stream, err)
		}
		puller, err := newJetStreamPuller(js, cfg.Stream, cfg.Consumer)
		if err != nil {
			return nil, err
		}
		runner.puller = puller
	}

	if tracingConfig != nil {
		shutdown, err := tracing.Setup(context.Background(), *tracingConfig, logger)
		if err != nil {
			logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
		} else {
			runner.tracingShutdown = shutdown
		}
	}

	return runner, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func ensureStream(js nats.JetStreamContext, streamName string, logger *zap.Logger) error {
	streamInfo, err := js.StreamInfo(streamName)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("failed to get stream info for %q: %w", streamName, err)
		}
		logger.Info("Creating JetStream stream", zap.String("stream", streamName))

		streamConfig := &nats.StreamConfig{
			Name:     streamName,
			Subjects: []string{fmt.Sprintf("%s.*", streamName)},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
			MaxMsgs:  100000,
			Replicas: 1,
		}
		if _, err := js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream %q: %w", streamName, err)
		}

		logger.Info("Successfully created JetStream stream",
			zap.String("stream", streamName),
			zap.Strings("subjects", streamConfig.Subjects))
		return nil
	}

	logger.Info("JetStream stream already exists",
		zap.String("stream", streamName),
		zap.Uint64("messages", streamInfo.State.Msgs),
		zap.Int("consumers", streamInfo.State.Consumers))
	return nil
}

// jetStreamPuller fetches batches from a durable pull consumer.
type jetStreamPuller struct {
	sub *nats.Subscription
}

func newJetStreamPuller(js nats.JetStreamContext, stream, consumer string) (*jetStreamPuller, error) {
	sub, err := js.PullSubscribe(fmt.Sprintf("%s.*", stream), consumer, nats.BindStream(stream))
	if err != nil {
		return nil, fmt.Errorf("failed to create pull subscription: %w", err)
	}
	return &jetStreamPuller{sub: sub}, nil
}

func (p *jetStreamPuller) Pull(ctx context.Context, batch int) ([]*nats.Msg, error) {
	msgs, err := p.sub.Fetch(batch, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return nil, nil
		}
		return nil, err
	}
	return msgs, nil
}

// Run starts the batch processing loop. It blocks until ctx is cancelled;
// batches already pulled are processed to a terminal state before returning.
func (r *Runner) Run(ctx context.Context) error {
	backoffDelay := 100 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("Runner stopped due to context cancellation")
			return err
		}

		msgs, err := r.puller.Pull(ctx, r.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("Runner stopped due to context cancellation")
				return ctx.Err()
			}
			r.logger.Error("Error pulling batch", zap.Error(err))
			select {
			case <-time.After(backoffDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoffDelay < maxBackoff {
				backoffDelay *= 2
			}
			continue
		}
		backoffDelay = 100 * time.Millisecond

		if len(msgs) == 0 {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		r.processBatch(ctx, msgs)
	}
}

// processBatch runs one pulled batch through the iteration engine.
func (r *Runner) processBatch(ctx context.Context, msgs []*nats.Msg) {
	batchID := uuid.NewString()
	startedAt := time.Now()

	ctx, span := r.tracer.Start(ctx, "runner.processBatch",
		trace.WithAttributes(
			attribute.String("batch.id", batchID),
			attribute.Int("batch.size", len(msgs)),
			attribute.String("stream", r.cfg.Stream),
			attribute.String("consumer", r.cfg.Consumer),
		))
	defer span.End()

	batchCtx, cancel := context.WithTimeout(ctx, r.cfg.ProcessTimeout)
	defer cancel()

	err := iterate.ForEach(batchCtx, sequence.Slice(msgs),
		func(ctx context.Context, msg *nats.Msg, index int) error {
			if err := r.handler(ctx, msg, index); err != nil {
				if nakErr := msg.Nak(); nakErr != nil {
					r.logger.Warn("Failed to nak message", zap.Error(nakErr))
				}
				return fmt.Errorf("failed processing message %d: %w", index, err)
			}
			if ackErr := msg.Ack(); ackErr != nil {
				r.logger.Warn("Failed to ack message", zap.Error(ackErr))
			}
			return nil
		},
		iterate.WithMaxConcurrent(r.cfg.MaxConcurrent),
		iterate.WithLogger(r.logger),
		iterate.WithTracer(r.tracer),
	)

	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
		r.logger.Info("Batch completed",
			zap.String("batch_id", batchID),
			zap.Int("size", len(msgs)),
			zap.Duration("took", time.Since(startedAt)))
	case apperrors.IsCancellation(err):
		span.SetStatus(codes.Error, "cancelled")
		r.logger.Info("Batch cancelled",
			zap.String("batch_id", batchID),
			zap.Int("size", len(msgs)))
	default:
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		r.logger.Error("Batch faulted",
			zap.String("batch_id", batchID),
			zap.Error(err))
	}

	if r.reports != nil {
		source := fmt.Sprintf("%s/%s", r.cfg.Stream, r.cfg.Consumer)
		report := storage.NewRunReport(batchID, source, len(msgs), r.cfg.MaxConcurrent, startedAt, err)
		if _, reportErr := r.reports.Append(ctx, report); reportErr != nil {
			r.logger.Warn("Failed to persist run report",
				zap.String("batch_id", batchID),
				zap.Error(reportErr))
		}
	}
}

// Close shuts down the runner's tracing resources.
func (r *Runner) Close() error {
	if r.tracingShutdown != nil {
		return tracing.Shutdown(r.tracingShutdown, r.logger)
	}
	return nil
}
