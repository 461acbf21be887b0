package iterate

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/scheduler"
)

const (
	// Unbounded dispatches one in-flight invocation per item, with no cap.
	Unbounded = 0

	// Serial executes invocations strictly one at a time, in input order.
	Serial = 1
)

type options struct {
	maxConcurrent int
	sched         scheduler.Scheduler
	logger        *zap.Logger
	tracer        trace.Tracer
}

// Option configures a single iteration run.
type Option func(*options)

// WithMaxConcurrent caps the number of in-flight invocations. Unbounded (0)
// runs everything concurrently, Serial (1) runs items one at a time, and any
// larger value bounds the run to that many workers. Negative values are
// rejected before dispatch.
func WithMaxConcurrent(n int) Option {
	return func(o *options) { o.maxConcurrent = n }
}

// WithScheduler routes every dispatched unit of work through s instead of
// the ambient goroutine pool. Combined with Serial, the whole run occupies a
// single scheduled unit on s.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(o *options) { o.sched = s }
}

// WithConfig applies the concurrency policy from an environment-derived
// configuration.
func WithConfig(cfg *concurrency.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.maxConcurrent = cfg.Concurrency()
		}
	}
}

// WithLogger attaches a logger to the run. Runs log at debug level only.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer overrides the tracer used for the run span.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		maxConcurrent: Unbounded,
		logger:        zap.NewNop(),
		tracer:        otel.Tracer("daedalus/iterate"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
