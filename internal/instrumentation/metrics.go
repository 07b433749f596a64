package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrSource    = "source"
	attrLogin     = "login"
	attrDomain    = "user_domain"
)

// Metrics provides methods for recording observability metrics.
// The zero value is a valid no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	relayCallsTotal   metric.Int64Counter
	relayCallDuration metric.Float64Histogram

	calendarOperationsTotal   metric.Int64Counter
	calendarOperationDuration metric.Float64Histogram

	summariesTotal  metric.Int64Counter
	summaryDuration metric.Float64Histogram

	loginsTotal metric.Int64Counter

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.relayCallsTotal, err = meter.Int64Counter(
		"relay_calls_total",
		metric.WithDescription("Total number of JSON-RPC calls made to the tool relay"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay_calls_total counter: %w", err)
	}

	m.relayCallDuration, err = meter.Float64Histogram(
		"relay_call_duration_seconds",
		metric.WithDescription("Tool relay call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay_call_duration_seconds histogram: %w", err)
	}

	m.calendarOperationsTotal, err = meter.Int64Counter(
		"calendar_api_operations_total",
		metric.WithDescription("Total number of calendar provider operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_api_operations_total counter: %w", err)
	}

	m.calendarOperationDuration, err = meter.Float64Histogram(
		"calendar_api_operation_duration_seconds",
		metric.WithDescription("Calendar provider operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_api_operation_duration_seconds histogram: %w", err)
	}

	m.summariesTotal, err = meter.Int64Counter(
		"summaries_total",
		metric.WithDescription("Total number of meeting summaries produced"),
		metric.WithUnit("{summary}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create summaries_total counter: %w", err)
	}

	m.summaryDuration, err = meter.Float64Histogram(
		"summary_duration_seconds",
		metric.WithDescription("Meeting summary generation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary_duration_seconds histogram: %w", err)
	}

	m.loginsTotal, err = meter.Int64Counter(
		"auth_logins_total",
		metric.WithDescription("Total number of login attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_logins_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
// The path should already be normalized with RoutePattern.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRelayCall records a JSON-RPC call against the relay (or the local
// stand-in). method is the JSON-RPC method, status is StatusSuccess or StatusError.
func (m *Metrics) RecordRelayCall(ctx context.Context, method, status string, duration time.Duration) {
	if m == nil || m.relayCallsTotal == nil || m.relayCallDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrStatus, status),
	}

	m.relayCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.relayCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCalendarAPIOperation records a calendar provider operation.
//
// Parameters:
//   - source: SourceGoogle or SourceICS
//   - operation: OperationListEvents or OperationFetchFeed
//   - status: StatusSuccess or StatusError
func (m *Metrics) RecordCalendarAPIOperation(ctx context.Context, source, operation, status string, duration time.Duration) {
	if m == nil || m.calendarOperationsTotal == nil || m.calendarOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrSource, source),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.calendarOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.calendarOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSummary records one summary attempt. status is StatusSuccess,
// StatusError or StatusFallback.
func (m *Metrics) RecordSummary(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.summariesTotal == nil || m.summaryDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStatus, status),
	}

	m.summariesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.summaryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordLogin records a login attempt. The user's email domain is only
// attached when detailed labels are enabled.
func (m *Metrics) RecordLogin(ctx context.Context, method, status, email string) {
	if m == nil || m.loginsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrLogin, method),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && email != "" {
		attrs = append(attrs, attribute.String(attrDomain, ExtractUserDomain(email)))
	}

	m.loginsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}
