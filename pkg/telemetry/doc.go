// Package telemetry provides logging, tracing and metrics for nodeops.
//
// Structured logging uses zerolog, tracing uses OpenTelemetry with stdout or
// OTLP/gRPC exporters, and metrics use a private Prometheus registry. The CLI
// is short-lived, so metrics are flushed to a node_exporter textfile on
// Shutdown instead of being served over HTTP; Handler is available for
// embedding the engine in a long-running process.
//
// Every engine operation is wrapped in an Operation:
//
//	op := tel.StartOperation(ctx, "check_host", opID, host, "medium")
//	err := doWork(op.Ctx)
//	op.End("failure", "insufficient_cpu", err)
//
// which produces one span, one operations_total increment and one
// operation_duration_seconds observation.
package telemetry
