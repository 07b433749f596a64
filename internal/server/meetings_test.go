package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/meetingbrief/internal/auth"
	"github.com/teemow/meetingbrief/internal/calendar"
	"github.com/teemow/meetingbrief/internal/config"
	"github.com/teemow/meetingbrief/internal/meeting"
	"github.com/teemow/meetingbrief/internal/relay"
	"github.com/teemow/meetingbrief/internal/summarize"
)

type stubSource struct {
	events []meeting.RawEvent
	err    error
}

func (s stubSource) FetchWindow(context.Context, time.Time) ([]meeting.RawEvent, error) {
	return s.events, s.err
}

func newAuthHandler(t *testing.T, google bool) *auth.Handler {
	t.Helper()
	sessions, err := auth.NewSessions(nil, false)
	require.NoError(t, err)
	cfg := auth.Config{Sessions: sessions, Logger: discardLogger()}
	if google {
		cfg.ClientID = "client-id"
		cfg.ClientSecret = "client-secret"
	}
	h, err := auth.NewHandler(cfg)
	require.NoError(t, err)
	return h
}

func TestMeetingService_SourceFor(t *testing.T) {
	googleUser := &auth.User{Email: "sam@example.com", Method: auth.MethodGoogle, Token: &oauth2.Token{AccessToken: "at"}}
	demoUser := &auth.User{Email: "alex@example.com", Method: auth.MethodDemo}
	remote := relay.New(relay.Config{URL: "http://relay.invalid", Logger: discardLogger()})
	local := relay.New(relay.Config{Logger: discardLogger()})
	feed := stubSource{}

	tests := []struct {
		name   string
		cfg    MeetingServiceConfig
		user   *auth.User
		google bool
		want   string
	}{
		{"google token wins", MeetingServiceConfig{Relay: remote, ICS: feed}, googleUser, true, config.SourceGoogle},
		{"token ignored without google login", MeetingServiceConfig{Relay: remote}, googleUser, false, config.SourceRelay},
		{"remote relay", MeetingServiceConfig{Relay: remote, ICS: feed}, demoUser, true, config.SourceRelay},
		{"ics before stand-in", MeetingServiceConfig{Relay: local, ICS: feed}, demoUser, false, config.SourceICS},
		{"stand-in", MeetingServiceConfig{Relay: local}, demoUser, false, config.SourceRelay},
		{"explicit source", MeetingServiceConfig{Source: config.SourceICS, Relay: remote}, googleUser, true, config.SourceICS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Auth = newAuthHandler(t, tt.google)
			s := NewMeetingService(tt.cfg)
			assert.Equal(t, tt.want, s.SourceFor(tt.user))
		})
	}
}

func TestMeetingService_Load(t *testing.T) {
	events := []meeting.RawEvent{
		{ID: "a", Summary: "Later", Start: &meeting.EventTime{DateTime: "2025-03-11T09:00:00Z"}, End: &meeting.EventTime{DateTime: "2025-03-11T09:30:00Z"}},
		{ID: "b", Summary: "Earlier", Start: &meeting.EventTime{DateTime: "2025-03-09T09:00:00Z"}, End: &meeting.EventTime{DateTime: "2025-03-09T10:00:00Z"}},
		{ID: "c", Summary: "Broken"},
	}
	user := &auth.User{Email: "alex@example.com", Method: auth.MethodDemo}

	t.Run("buckets and summarizes", func(t *testing.T) {
		s := NewMeetingService(MeetingServiceConfig{
			Source:     config.SourceICS,
			ICS:        stubSource{events: events},
			Summarizer: summarize.New(summarize.Config{Logger: discardLogger()}),
			Logger:     discardLogger(),
		})

		p, err := s.Load(context.Background(), user, testNow)
		require.NoError(t, err)
		assert.Equal(t, []string{"Later"}, titles(p.Upcoming))
		require.Len(t, p.Past, 1)
		assert.Equal(t, "Earlier: 60-minute meeting with 0 attendees.", p.Past[0].Summary)
	})

	t.Run("without summarizer", func(t *testing.T) {
		s := NewMeetingService(MeetingServiceConfig{
			Source: config.SourceICS,
			ICS:    stubSource{events: events},
			Logger: discardLogger(),
		})

		p, err := s.Load(context.Background(), user, testNow)
		require.NoError(t, err)
		require.Len(t, p.Past, 1)
		assert.Empty(t, p.Past[0].Summary)
	})

	t.Run("source error", func(t *testing.T) {
		boom := errors.New("boom")
		s := NewMeetingService(MeetingServiceConfig{
			Source: config.SourceICS,
			ICS:    stubSource{err: boom},
			Logger: discardLogger(),
		})

		_, err := s.Load(context.Background(), user, testNow)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("ics without feed", func(t *testing.T) {
		s := NewMeetingService(MeetingServiceConfig{Source: config.SourceICS, Logger: discardLogger()})
		_, err := s.Load(context.Background(), user, testNow)
		assert.ErrorIs(t, err, errNoICSFeed)
	})

	t.Run("relay without client", func(t *testing.T) {
		s := NewMeetingService(MeetingServiceConfig{Source: config.SourceRelay, Logger: discardLogger()})
		_, err := s.Load(context.Background(), user, testNow)
		assert.ErrorIs(t, err, errNoRelay)
	})

	t.Run("google without token", func(t *testing.T) {
		s := NewMeetingService(MeetingServiceConfig{
			Source: config.SourceGoogle,
			Auth:   newAuthHandler(t, true),
			Logger: discardLogger(),
		})
		_, err := s.Load(context.Background(), user, testNow)
		assert.ErrorIs(t, err, calendar.ErrNoToken)
	})
}
