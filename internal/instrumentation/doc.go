// Package instrumentation provides OpenTelemetry metrics, tracing and a
// login audit trail for meetingbrief.
//
// # Metrics
//
// HTTP:
//   - http_requests_total: requests by method, route and status
//   - http_request_duration_seconds
//
// Tool relay:
//   - relay_calls_total: JSON-RPC calls by method and status
//   - relay_call_duration_seconds
//
// Calendar providers (Google Calendar API, ICS feeds):
//   - calendar_api_operations_total: operations by source, operation and status
//   - calendar_api_operation_duration_seconds
//
// Summaries:
//   - summaries_total: by status (success, error, fallback)
//   - summary_duration_seconds
//
// Auth:
//   - auth_logins_total: by login method and status
//
// # Tracing
//
// Spans are created for relay calls (relay.<method>), calendar provider
// operations (calendar.<source>.<operation>) and completion requests
// (summarize.meeting).
//
// # Configuration
//
// DefaultConfig reads:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: meetingbrief)
//   - METRICS_DETAILED_LABELS, AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	m := provider.Metrics()
//	m.RecordRelayCall(ctx, "tools/list", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
