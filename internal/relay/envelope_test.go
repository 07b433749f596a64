package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsEnvelope(t *testing.T) {
	tests := []struct {
		name         string
		result       string
		wantIDs      []string
		wantStrategy string
	}{
		{
			name:         "top-level array",
			result:       `[{"id":"a"},{"id":"b"}]`,
			wantIDs:      []string{"a", "b"},
			wantStrategy: "array",
		},
		{
			name:         "items",
			result:       `{"items":[{"id":"a"}],"nextPageToken":"x"}`,
			wantIDs:      []string{"a"},
			wantStrategy: "items",
		},
		{
			name:         "items wins over events",
			result:       `{"events":[{"id":"e"}],"items":[{"id":"i"}]}`,
			wantIDs:      []string{"i"},
			wantStrategy: "items",
		},
		{
			name:         "events",
			result:       `{"events":[{"id":"a"}]}`,
			wantIDs:      []string{"a"},
			wantStrategy: "events",
		},
		{
			name:         "content array of records",
			result:       `{"content":[{"id":"a"},{"id":"b"}]}`,
			wantIDs:      []string{"a", "b"},
			wantStrategy: "content",
		},
		{
			name:         "content.events",
			result:       `{"content":{"events":[{"id":"a"}]}}`,
			wantIDs:      []string{"a"},
			wantStrategy: "content.events",
		},
		{
			name:         "data.items",
			result:       `{"data":{"items":[{"id":"a"}]}}`,
			wantIDs:      []string{"a"},
			wantStrategy: "data.items",
		},
		{
			name:         "items inside text block",
			result:       `{"content":[{"type":"text","text":"{\"items\":[{\"id\":\"a\"},{\"id\":\"b\"}]}"}]}`,
			wantIDs:      []string{"a", "b"},
			wantStrategy: "content.text",
		},
		{
			name:         "data.items inside text block",
			result:       `{"content":[{"type":"text","text":"{\"successful\":true,\"data\":{\"items\":[{\"id\":\"a\"}]}}"}]}`,
			wantIDs:      []string{"a"},
			wantStrategy: "content.text",
		},
		{
			name:         "last parseable text block wins",
			result:       `{"content":[{"type":"text","text":"{\"items\":[{\"id\":\"first\"}]}"},{"type":"text","text":"{\"items\":[{\"id\":\"last\"}]}"}]}`,
			wantIDs:      []string{"last"},
			wantStrategy: "content.text",
		},
		{
			name:         "prose text block is skipped",
			result:       `{"content":[{"type":"text","text":"{\"items\":[{\"id\":\"a\"}]}"},{"type":"text","text":"Here are your events."}]}`,
			wantIDs:      []string{"a"},
			wantStrategy: "content.text",
		},
		{
			name:         "empty items still matches",
			result:       `{"items":[],"events":[{"id":"ignored"}]}`,
			wantIDs:      []string{},
			wantStrategy: "items",
		},
		{
			name:   "text blocks without json",
			result: `{"content":[{"type":"text","text":"no events"}]}`,
		},
		{
			name:   "object without arrays",
			result: `{"kind":"calendar#events","summary":"x"}`,
		},
		{
			name:   "items is not an array",
			result: `{"items":"nope"}`,
		},
		{
			name:   "null",
			result: `null`,
		},
		{
			name:   "scalar",
			result: `"events"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := json.RawMessage(tt.result)

			assert.Equal(t, tt.wantStrategy, EventsEnvelope.Strategy(raw))

			items := Extract(raw)
			if tt.wantIDs == nil {
				assert.Nil(t, items)
				return
			}
			require.NotNil(t, items)
			assert.Equal(t, tt.wantIDs, idsOf(t, items))
		})
	}
}

func TestCalendarsEnvelope(t *testing.T) {
	tests := []struct {
		name         string
		result       string
		wantStrategy string
	}{
		{name: "array", result: `[{"id":"a"}]`, wantStrategy: "array"},
		{name: "items", result: `{"items":[{"id":"a"}]}`, wantStrategy: "items"},
		{name: "calendars", result: `{"calendars":[{"id":"a"}]}`, wantStrategy: "calendars"},
		{name: "data.items", result: `{"data":{"items":[{"id":"a"}]}}`, wantStrategy: "data.items"},
		{name: "data.calendars", result: `{"data":{"calendars":[{"id":"a"}]}}`, wantStrategy: "data.calendars"},
		{name: "text", result: `{"content":[{"type":"text","text":"{\"data\":{\"calendars\":[{\"id\":\"a\"}]}}"}]}`, wantStrategy: "content.text"},
		{name: "events are not calendars", result: `{"events":[{"id":"a"}]}`, wantStrategy: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStrategy, CalendarsEnvelope.Strategy(json.RawMessage(tt.result)))
		})
	}
}

func TestCalendarIDs(t *testing.T) {
	t.Run("caps at limit in relay order", func(t *testing.T) {
		result := `{"items":[{"id":"c1"},{"id":"c2"},{"id":"c3"},{"id":"c4"},{"id":"c5"},{"id":"c6"},{"id":"c7"}]}`
		assert.Equal(t, []string{"c1", "c2", "c3", "c4", "c5"}, calendarIDs(json.RawMessage(result), 5))
	})

	t.Run("skips entries without id", func(t *testing.T) {
		result := `[{"summary":"no id"},{"id":""},{"id":"work"}]`
		assert.Equal(t, []string{"work"}, calendarIDs(json.RawMessage(result), 5))
	})

	t.Run("defaults to primary", func(t *testing.T) {
		for _, result := range []string{`{"items":[]}`, `{"unexpected":true}`, `null`, `[{"summary":"x"}]`} {
			assert.Equal(t, []string{DefaultCalendarID}, calendarIDs(json.RawMessage(result), 5), result)
		}
	})
}

func idsOf(t *testing.T, items []json.RawMessage) []string {
	t.Helper()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		var v struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(item, &v))
		ids = append(ids, v.ID)
	}
	return ids
}
