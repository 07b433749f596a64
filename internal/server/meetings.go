package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/meetingbrief/internal/auth"
	"github.com/teemow/meetingbrief/internal/calendar"
	"github.com/teemow/meetingbrief/internal/config"
	"github.com/teemow/meetingbrief/internal/instrumentation"
	"github.com/teemow/meetingbrief/internal/logging"
	"github.com/teemow/meetingbrief/internal/meeting"
	"github.com/teemow/meetingbrief/internal/relay"
	"github.com/teemow/meetingbrief/internal/summarize"
)

var (
	errNoICSFeed = errors.New("no ICS feed configured")
	errNoRelay   = errors.New("no relay configured")
)

// MeetingServiceConfig wires the event sources into a MeetingService.
type MeetingServiceConfig struct {
	// Source is one of the config.Source* values.
	Source string

	Relay *relay.Client

	// ICS is nil when no feed is configured.
	ICS calendar.Source

	// Auth provides token sources for users signed in with Google.
	Auth *auth.Handler

	// Summarizer is nil when summaries are disabled.
	Summarizer *summarize.Summarizer

	// CalendarEndpoint overrides the Google Calendar API base URL.
	CalendarEndpoint string

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// MeetingService loads the bucketed meetings for one signed-in user.
type MeetingService struct {
	cfg    MeetingServiceConfig
	logger *slog.Logger
}

// NewMeetingService creates a MeetingService.
func NewMeetingService(cfg MeetingServiceConfig) *MeetingService {
	if cfg.Source == "" {
		cfg.Source = config.SourceAuto
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &MeetingService{
		cfg:    cfg,
		logger: logging.WithService(cfg.Logger, "meetings"),
	}
}

// Load fetches raw events from the selected source, buckets them against
// now and attaches summaries to past meetings. When the user's Google token
// had to be refreshed, user.Token is replaced with the new token.
func (s *MeetingService) Load(ctx context.Context, user *auth.User, now time.Time) (meeting.Payload, error) {
	ctx, span := instrumentation.StartSpan(ctx, "meetings.load")
	defer span.End()

	source := s.SourceFor(user)
	logger := s.logger.With(logging.Operation("load"), "source", source)

	raws, err := s.fetch(ctx, source, user, now)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		logger.Error("failed to fetch events", logging.Err(err))
		return meeting.Payload{}, err
	}

	p := meeting.Split(raws, now)
	if s.cfg.Summarizer != nil {
		p = s.cfg.Summarizer.Apply(ctx, p)
	}

	logger.Debug("meetings loaded",
		"raw", len(raws),
		"upcoming", len(p.Upcoming),
		"past", len(p.Past),
	)
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithCount(len(raws)).Build()...)
	instrumentation.SetSpanSuccess(span)
	return p, nil
}

// SourceFor resolves the configured source for user. In auto mode a Google
// token wins, then a remote relay, then an ICS feed, then the stand-in.
func (s *MeetingService) SourceFor(user *auth.User) string {
	if s.cfg.Source != config.SourceAuto {
		return s.cfg.Source
	}
	switch {
	case user != nil && user.HasToken() && s.cfg.Auth != nil && s.cfg.Auth.GoogleEnabled():
		return config.SourceGoogle
	case s.cfg.Relay != nil && s.cfg.Relay.Remote():
		return config.SourceRelay
	case s.cfg.ICS != nil:
		return config.SourceICS
	default:
		return config.SourceRelay
	}
}

func (s *MeetingService) fetch(ctx context.Context, source string, user *auth.User, now time.Time) ([]meeting.RawEvent, error) {
	switch source {
	case config.SourceGoogle:
		return s.fetchGoogle(ctx, user, now)
	case config.SourceICS:
		if s.cfg.ICS == nil {
			return nil, errNoICSFeed
		}
		return s.cfg.ICS.FetchWindow(ctx, now)
	default:
		if s.cfg.Relay == nil {
			return nil, errNoRelay
		}
		return s.cfg.Relay.FetchRawEvents(ctx, now), nil
	}
}

func (s *MeetingService) fetchGoogle(ctx context.Context, user *auth.User, now time.Time) ([]meeting.RawEvent, error) {
	if s.cfg.Auth == nil {
		return nil, calendar.ErrNoToken
	}
	ts := s.cfg.Auth.TokenSource(ctx, user)
	if ts == nil {
		return nil, calendar.ErrNoToken
	}

	client, err := calendar.NewClient(ctx, calendar.Config{
		TokenSource: ts,
		Endpoint:    s.cfg.CalendarEndpoint,
		Logger:      s.cfg.Logger,
		Metrics:     s.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	raws, err := client.FetchWindow(ctx, now)
	if tok, ok := ts.Refreshed(); ok {
		user.Token = tok
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list Google Calendar events: %w", err)
	}
	return raws, nil
}
