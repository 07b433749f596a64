package meeting

import (
	"math"
	"sort"
	"time"
)

const (
	// MaxUpcoming caps the upcoming bucket.
	MaxUpcoming = 5

	// MaxPast caps the past bucket.
	MaxPast = 5

	// LookBack is how far before now events are requested from providers.
	LookBack = 7 * 24 * time.Hour

	// LookAhead is how far after now events are requested from providers.
	LookAhead = 30 * 24 * time.Hour
)

// Window returns the [timeMin, timeMax] range used when asking providers for events.
func Window(now time.Time) (time.Time, time.Time) {
	return now.Add(-LookBack), now.Add(LookAhead)
}

// DurationMins returns the rounded number of minutes between start and end,
// floored at 1. Both values must be valid RFC3339 timestamps; unparsable input
// yields 1.
func DurationMins(start, end string) int {
	s, errS := parseTimestamp(start)
	e, errE := parseTimestamp(end)
	if errS != nil || errE != nil {
		return 1
	}
	mins := int(math.Round(e.Sub(s).Minutes()))
	if mins < 1 {
		return 1
	}
	return mins
}

// effective resolves the timed value, else the date-only value at midnight UTC.
func effective(t *EventTime) (string, bool) {
	if t == nil {
		return "", false
	}
	if t.DateTime != "" {
		return t.DateTime, true
	}
	if t.Date != "" {
		return t.Date + "T00:00:00Z", true
	}
	return "", false
}

// Normalize maps a raw event to a Meeting evaluated at now. The second return
// value is false when the event has no usable start or end, or its times do not
// parse.
func Normalize(raw RawEvent, now time.Time) (Meeting, bool) {
	start, ok := effective(raw.Start)
	if !ok {
		return Meeting{}, false
	}
	end, ok := effective(raw.End)
	if !ok {
		return Meeting{}, false
	}
	if _, err := parseTimestamp(start); err != nil {
		return Meeting{}, false
	}
	endAt, err := parseTimestamp(end)
	if err != nil {
		return Meeting{}, false
	}

	title := raw.Summary
	if title == "" {
		title = NoTitle
	}

	attendees := make([]Attendee, 0, len(raw.Attendees))
	for _, a := range raw.Attendees {
		attendees = append(attendees, Attendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
			Response:    a.ResponseStatus,
		})
	}

	return Meeting{
		ID:           raw.ID,
		Title:        title,
		Start:        start,
		End:          end,
		DurationMins: DurationMins(start, end),
		Attendees:    attendees,
		Description:  raw.Description,
		IsPast:       endAt.Before(now),
	}, true
}

// NormalizeAll normalizes every event, silently dropping the ones that fail.
func NormalizeAll(raws []RawEvent, now time.Time) []Meeting {
	out := make([]Meeting, 0, len(raws))
	for _, raw := range raws {
		if m, ok := Normalize(raw, now); ok {
			out = append(out, m)
		}
	}
	return out
}

// Bucket partitions meetings into upcoming (end >= now, input order) and past
// (end < now, most recently ended first), each capped.
func Bucket(meetings []Meeting, now time.Time) Payload {
	var upcoming, past []Meeting
	for _, m := range meetings {
		end, err := parseTimestamp(m.End)
		if err != nil {
			continue
		}
		if end.Before(now) {
			past = append(past, m)
		} else {
			upcoming = append(upcoming, m)
		}
	}

	sort.SliceStable(past, func(i, j int) bool {
		ei, _ := parseTimestamp(past[i].End)
		ej, _ := parseTimestamp(past[j].End)
		return ei.After(ej)
	})

	if len(upcoming) > MaxUpcoming {
		upcoming = upcoming[:MaxUpcoming]
	}
	if len(past) > MaxPast {
		past = past[:MaxPast]
	}

	return Payload{Upcoming: upcoming, Past: past}
}

// Split normalizes raw events and buckets them in one step.
func Split(raws []RawEvent, now time.Time) Payload {
	return Bucket(NormalizeAll(raws, now), now)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
