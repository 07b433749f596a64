package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/meetingbrief/internal/config"
	"github.com/teemow/meetingbrief/internal/meeting"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func titles(ms []meeting.Meeting) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Title)
	}
	return out
}

func TestLoadMeetings_Standin(t *testing.T) {
	cfg := config.Default()

	p, err := loadMeetings(context.Background(), cfg, discardLogger(), testNow)
	require.NoError(t, err)

	assert.Equal(t, []string{"Standup", "1:1", "Design Review", "Sprint Planning", "Customer Call"}, titles(p.Upcoming))
	assert.Equal(t, []string{"Retro", "Hiring Sync", "Ops Review", "Roadmap", "Partner Check-in"}, titles(p.Past))
	assert.Equal(t, "Retro: 30-minute meeting with 1 attendee.", p.Past[0].Summary)
}

func TestLoadMeetings_SummariesDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Summaries = false

	p, err := loadMeetings(context.Background(), cfg, discardLogger(), testNow)
	require.NoError(t, err)
	require.NotEmpty(t, p.Past)
	for _, m := range p.Past {
		assert.Empty(t, m.Summary, m.Title)
	}
}

func TestLoadMeetings_GoogleSource(t *testing.T) {
	cfg := config.Default()
	cfg.Source = config.SourceGoogle

	_, err := loadMeetings(context.Background(), cfg, discardLogger(), testNow)
	assert.ErrorIs(t, err, errGoogleNeedsBrowser)
}

func TestLoadMeetings_ICSFeed(t *testing.T) {
	feed := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:board-1",
		"DTSTAMP:20250301T000000Z",
		"DTSTART:20250311T090000Z",
		"DTEND:20250311T100000Z",
		"SUMMARY:Board Meeting",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = io.WriteString(w, feed)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.ICS.URL = srv.URL

	p, err := loadMeetings(context.Background(), cfg, discardLogger(), testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"Board Meeting"}, titles(p.Upcoming))
	assert.Empty(t, p.Past)
}

func TestWriteMeetingsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMeetingsJSON(&buf, meeting.Payload{}))

	var got map[string][]meeting.Meeting
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.NotNil(t, got["upcoming"])
	assert.NotNil(t, got["past"])
}

func TestWriteMeetingsTable(t *testing.T) {
	p := meeting.Payload{
		Upcoming: []meeting.Meeting{{
			Title:        "Standup",
			Start:        "2025-03-10T12:30:00Z",
			DurationMins: 30,
			Attendees:    []meeting.Attendee{{Email: "alex@example.com"}},
		}},
		Past: []meeting.Meeting{{
			Title:        "Retro",
			Start:        "2025-03-10T11:00:00Z",
			DurationMins: 30,
			Summary:      "- went well\n- action items",
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, writeMeetingsTable(&buf, p))
	out := buf.String()

	assert.Contains(t, out, "Upcoming (next 5)")
	assert.Contains(t, out, "Past (latest 5)")
	assert.Contains(t, out, "Standup")
	assert.Contains(t, out, "Retro")
	assert.Contains(t, out, "- went well")
	assert.Contains(t, out, "- action items")
}

func TestWriteMeetingsTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMeetingsTable(&buf, meeting.Payload{}))
	assert.Equal(t, 2, strings.Count(buf.String(), "(none)"))
}
