package standin

import (
	"sort"
	"time"

	"github.com/teemow/meetingbrief/internal/meeting"
)

type fixture struct {
	id          string
	title       string
	start, end  time.Duration
	description string
}

var fixtures = []fixture{
	{"u1", "Standup", 30 * time.Minute, 60 * time.Minute, "Daily sync"},
	{"u2", "1:1", 90 * time.Minute, 120 * time.Minute, "Career chat"},
	{"u3", "Design Review", 180 * time.Minute, 240 * time.Minute, "UI pass"},
	{"u4", "Sprint Planning", 300 * time.Minute, 360 * time.Minute, "Backlog"},
	{"u5", "Customer Call", 420 * time.Minute, 480 * time.Minute, "Demo"},
	{"p1", "Retro", -60 * time.Minute, -30 * time.Minute, "What went well"},
	{"p2", "Hiring Sync", -120 * time.Minute, -90 * time.Minute, "Pipeline"},
	{"p3", "Ops Review", -240 * time.Minute, -210 * time.Minute, "Incidents"},
	{"p4", "Roadmap", -360 * time.Minute, -330 * time.Minute, "Q4 plans"},
	{"p5", "Partner Check-in", -480 * time.Minute, -450 * time.Minute, "Joint GTM"},
}

// FixtureAttendee is the single attendee on every fixture event.
var FixtureAttendee = meeting.RawAttendee{
	Email:          "alex@example.com",
	DisplayName:    "Alex Doe",
	ResponseStatus: "accepted",
}

// Events returns the fixture events positioned relative to now, upcoming
// first, in declaration order.
func Events(now time.Time) []meeting.RawEvent {
	events := make([]meeting.RawEvent, 0, len(fixtures))
	for _, f := range fixtures {
		events = append(events, meeting.RawEvent{
			ID:          f.id,
			Summary:     f.title,
			Start:       &meeting.EventTime{DateTime: now.Add(f.start).UTC().Format(time.RFC3339)},
			End:         &meeting.EventTime{DateTime: now.Add(f.end).UTC().Format(time.RFC3339)},
			Attendees:   []meeting.RawAttendee{FixtureAttendee},
			Description: f.description,
		})
	}
	return events
}

// eventsBetween returns the fixtures overlapping [from, to] sorted by start,
// at most limit of them. Zero bounds are open.
func eventsBetween(now, from, to time.Time, limit int) []meeting.RawEvent {
	var out []meeting.RawEvent
	for _, ev := range Events(now) {
		start, _ := time.Parse(time.RFC3339, ev.Start.DateTime)
		end, _ := time.Parse(time.RFC3339, ev.End.DateTime)
		if !from.IsZero() && end.Before(from) {
			continue
		}
		if !to.IsZero() && start.After(to) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.DateTime < out[j].Start.DateTime
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
