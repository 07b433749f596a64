package calendar

import (
	"context"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/meetingbrief/internal/meeting"
)

// Source yields raw events for the window around now.
type Source interface {
	FetchWindow(ctx context.Context, now time.Time) ([]meeting.RawEvent, error)
}

// toRawEvent converts a Google Calendar event to a RawEvent. The API
// already uses the same dateTime/date shape, so values pass through.
func toRawEvent(event *calendar.Event) meeting.RawEvent {
	if event == nil {
		return meeting.RawEvent{}
	}

	raw := meeting.RawEvent{
		ID:          event.Id,
		Summary:     event.Summary,
		Description: event.Description,
		Start:       toEventTime(event.Start),
		End:         toEventTime(event.End),
	}

	for _, att := range event.Attendees {
		if att == nil {
			continue
		}
		raw.Attendees = append(raw.Attendees, meeting.RawAttendee{
			Email:          att.Email,
			DisplayName:    att.DisplayName,
			ResponseStatus: att.ResponseStatus,
		})
	}

	return raw
}

func toEventTime(t *calendar.EventDateTime) *meeting.EventTime {
	if t == nil {
		return nil
	}
	return &meeting.EventTime{DateTime: t.DateTime, Date: t.Date}
}
