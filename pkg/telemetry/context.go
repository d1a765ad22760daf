package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing and metrics.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Noop returns telemetry that discards logs, spans and metrics.
func Noop() *Telemetry {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = false
	tracer, _ := NewTracer(TracingConfig{}, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	return &Telemetry{
		Logger:  NopLogger(),
		Tracer:  tracer,
		Metrics: &Metrics{},
		Config:  cfg,
	}
}

// Shutdown flushes spans and writes the metrics textfile if configured.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Tracer.Shutdown(ctx),
		t.Metrics.WriteTextfile(),
	)
}

// Operation is one instrumented engine operation: a span, a scoped logger
// and a timer.
type Operation struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer

	name    string
	class   string
	metrics *Metrics
}

// StartOperation begins an instrumented operation against host.
func (t *Telemetry) StartOperation(ctx context.Context, name, opID, host, class string) *Operation {
	spanCtx, span := t.Tracer.StartSpan(ctx, "nodeops."+name,
		AttrOperation.String(name),
		AttrOpID.String(opID),
		AttrTargetHost.String(host),
		AttrClass.String(class),
	)

	logger := t.Logger.WithHost(host).WithFields(map[string]interface{}{
		"operation": name,
		"op_id":     opID,
		"class":     class,
	})
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}

	return &Operation{
		Ctx:     spanCtx,
		Span:    span,
		Logger:  logger,
		Timer:   NewTimer(),
		name:    name,
		class:   class,
		metrics: t.Metrics,
	}
}

// End finishes the operation. outcome is "success", "not_found", "skipped"
// or "failure"; kind is the failure kind for failures.
func (o *Operation) End(outcome, kind string, err error) {
	o.Span.SetAttributes(AttrOutcome.String(outcome))
	if err != nil {
		o.Span.SetAttributes(attribute.String(string(AttrErrorKind), kind))
		RecordError(o.Span, err)
		o.metrics.RecordFailure(kind)
	} else {
		RecordSuccess(o.Span)
	}
	o.Span.End()
	o.metrics.RecordOperation(o.name, o.class, outcome, o.Timer.Duration())
}
