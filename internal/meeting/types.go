package meeting

import "encoding/json"

// NoTitle is the placeholder title used when an event has no summary.
const NoTitle = "(No title)"

// EventTime is a provider start or end value. Exactly one of DateTime (RFC3339)
// or Date (YYYY-MM-DD, all-day events) is normally set.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

// RawAttendee is an attendee as reported by the calendar provider.
type RawAttendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

// RawEvent is a provider-shaped, untrusted calendar event.
type RawEvent struct {
	ID          string        `json:"id"`
	Summary     string        `json:"summary,omitempty"`
	Start       *EventTime    `json:"start,omitempty"`
	End         *EventTime    `json:"end,omitempty"`
	Attendees   []RawAttendee `json:"attendees,omitempty"`
	Description string        `json:"description,omitempty"`
}

// Attendee is a normalized attendee record.
type Attendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	Response    string `json:"response,omitempty"`
}

// Name returns the display name, falling back to the email address.
func (a Attendee) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Email
}

// Meeting is the canonical meeting record served to clients.
type Meeting struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Start        string     `json:"start"`
	End          string     `json:"end"`
	DurationMins int        `json:"durationMins"`
	Attendees    []Attendee `json:"attendees"`
	Description  string     `json:"description,omitempty"`
	IsPast       bool       `json:"isPast"`
	Summary      string     `json:"summary,omitempty"`
}

// Payload is the bucketed response body. It is built per request and never stored.
type Payload struct {
	Upcoming []Meeting `json:"upcoming"`
	Past     []Meeting `json:"past"`
}

// MarshalJSON renders empty buckets as [] rather than null.
func (p Payload) MarshalJSON() ([]byte, error) {
	type payload Payload
	out := payload(p)
	if out.Upcoming == nil {
		out.Upcoming = []Meeting{}
	}
	if out.Past == nil {
		out.Past = []Meeting{}
	}
	return json.Marshal(out)
}

// Empty reports whether both buckets are empty.
func (p Payload) Empty() bool {
	return len(p.Upcoming) == 0 && len(p.Past) == 0
}
