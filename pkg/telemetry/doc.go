// Package telemetry provides observability for confield: structured logging
// (zerolog), tracing (OpenTelemetry), metrics (Prometheus) and an in-process
// event publisher.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// Components find the telemetry through the context. Without one every
// helper degrades to a no-op, so library code can call them unconditionally:
//
//	ctx = telemetry.WithEvaluationContext(ctx, runID, "rules.bzl")
//	defer telemetry.EndEvaluationContext(ctx, runID, "rules.bzl", n, err)
//
// # Metrics
//
// Exposed at MetricsConfig.Path (default /metrics) when enabled:
//
//   - confield_configuration_field_calls_total{outcome}
//   - confield_evaluations_total{status}
//   - confield_evaluation_duration_seconds{status}
//   - confield_active_evaluations
//   - confield_resolutions_total{fragment,status}
//   - confield_policy_violations_total{policy}
//
// # Exporters
//
// Tracing supports "otlp" (gRPC), "stdout" and "none".
package telemetry
