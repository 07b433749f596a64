package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/meetingbrief/internal/instrumentation"
	"github.com/teemow/meetingbrief/internal/logging"
	"github.com/teemow/meetingbrief/internal/meeting"
)

// ErrNoToken is returned by NewClient when no credentials are supplied.
var ErrNoToken = errors.New("no Google OAuth token available")

const (
	// PrimaryCalendar is the calendar FetchWindow reads.
	PrimaryCalendar = "primary"

	// DefaultPageSize is the maxResults used by FetchWindow.
	DefaultPageSize = 50
)

// Config configures a Client.
type Config struct {
	// TokenSource supplies the user's OAuth token. It should refresh
	// expired tokens, e.g. one returned by auth.Handler.TokenSource.
	TokenSource oauth2.TokenSource

	// HTTPClient replaces the OAuth client entirely. Tests use it together
	// with Endpoint.
	HTTPClient *http.Client

	// Endpoint overrides the Calendar API base URL.
	Endpoint string

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// Client wraps the Google Calendar service
type Client struct {
	svc     *calendar.Service
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewClient creates a Calendar client for one user's token.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		if cfg.TokenSource == nil {
			return nil, ErrNoToken
		}
		httpClient = oauth2.NewClient(ctx, cfg.TokenSource)
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		svc:     svc,
		logger:  logging.WithSource(logger, instrumentation.SourceGoogle),
		metrics: cfg.Metrics,
	}, nil
}

// ListEvents lists single events in a calendar within a time range,
// ordered by start time.
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, maxResults int64) ([]meeting.RawEvent, error) {
	start := time.Now()
	ctx, span := instrumentation.StartCalendarAPISpan(ctx, instrumentation.SourceGoogle, instrumentation.OperationListEvents,
		instrumentation.NewSpanAttributeBuilder().WithCalendar(calendarID).Build()...)
	defer span.End()

	call := c.svc.Events.List(calendarID).
		Context(ctx).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}

	events, err := call.Do()
	if err != nil {
		err = fmt.Errorf("failed to list events: %w", err)
		c.record(ctx, instrumentation.OperationListEvents, err, start)
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	raws := make([]meeting.RawEvent, 0, len(events.Items))
	for _, event := range events.Items {
		raws = append(raws, toRawEvent(event))
	}

	c.record(ctx, instrumentation.OperationListEvents, nil, start)
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithCount(len(raws)).Build()...)
	instrumentation.SetSpanSuccess(span)
	return raws, nil
}

// FetchWindow lists the primary calendar's events in meeting.Window(now).
func (c *Client) FetchWindow(ctx context.Context, now time.Time) ([]meeting.RawEvent, error) {
	timeMin, timeMax := meeting.Window(now)
	return c.ListEvents(ctx, PrimaryCalendar, timeMin, timeMax, DefaultPageSize)
}

func (c *Client) record(ctx context.Context, operation string, err error, start time.Time) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		c.logger.Error("calendar API call failed", logging.Operation(operation), logging.Err(err))
	} else {
		c.logger.Debug("calendar API call succeeded", logging.Operation(operation),
			slog.Duration(logging.KeyDuration, time.Since(start)))
	}
	c.metrics.RecordCalendarAPIOperation(ctx, instrumentation.SourceGoogle, operation, status, time.Since(start))
}
