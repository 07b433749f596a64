package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/teemow/meetingbrief/internal/instrumentation"
	"github.com/teemow/meetingbrief/internal/logging"
	"github.com/teemow/meetingbrief/internal/meeting"
)

// StandinMethod is the custom method served by the local stand-in.
const StandinMethod = "google_calendar.listEvents"

// DefaultCalendarID is used when no calendars-list tool exists or it
// returns nothing usable.
const DefaultCalendarID = "primary"

// FetchMeetings fetches raw events and buckets them against now.
func (c *Client) FetchMeetings(ctx context.Context, now time.Time) meeting.Payload {
	return meeting.Split(c.FetchRawEvents(ctx, now), now)
}

// FetchRawEvents returns raw events from the remote relay, or from the
// stand-in when no relay is configured. Failures yield nil.
func (c *Client) FetchRawEvents(ctx context.Context, now time.Time) []meeting.RawEvent {
	if !c.Remote() {
		return c.fetchStandin(ctx)
	}

	ctx, span := instrumentation.StartSpan(ctx, "relay.fetch_events")
	defer span.End()
	logger := logging.WithOperation(c.logger, "fetch_events")

	cat, err := c.Discover(ctx)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		logger.Error("cannot list events", logging.Err(err), "tools", len(cat.Tools()))
		return nil
	}
	eventsTool, _ := cat.Lookup(CapabilityEventsList)

	calendarIDs := []string{DefaultCalendarID}
	if calTool, ok := cat.Lookup(CapabilityCalendarsList); ok {
		calendarIDs = c.ListCalendarIDs(ctx, calTool.Name)
	}

	timeMin, timeMax := meeting.Window(now)
	var events []meeting.RawEvent
	for _, id := range calendarIDs {
		out := c.CallTool(ctx, eventsTool.Name, map[string]any{
			"calendarId":   id,
			"timeMin":      timeMin.UTC().Format(time.RFC3339),
			"timeMax":      timeMax.UTC().Format(time.RFC3339),
			"singleEvents": true,
			"orderBy":      "startTime",
			"maxResults":   c.cfg.PageSize,
		})
		if !out.OK {
			logger.Warn("events call failed", logging.Tool(eventsTool.Name), "calendar_id", id)
			continue
		}
		items := Extract(out.Result)
		if items == nil {
			logger.Warn("no event array in tool result", logging.Tool(eventsTool.Name), "calendar_id", id)
			continue
		}
		logger.Debug("events extracted", logging.Tool(eventsTool.Name), "calendar_id", id,
			"strategy", EventsEnvelope.Strategy(out.Result), "count", len(items))
		events = append(events, decodeEvents(items)...)
	}

	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithTool(eventsTool.Name).
		WithCount(len(events)).
		Build()...)
	instrumentation.SetSpanSuccess(span)
	return events
}

// ListCalendarIDs calls the calendars-list tool and returns up to
// MaxCalendars ids, or ["primary"] when nothing usable comes back.
func (c *Client) ListCalendarIDs(ctx context.Context, tool string) []string {
	out := c.CallTool(ctx, tool, map[string]any{})
	if !out.OK {
		return []string{DefaultCalendarID}
	}
	return calendarIDs(out.Result, c.cfg.MaxCalendars)
}

func calendarIDs(result json.RawMessage, limit int) []string {
	var ids []string
	for _, item := range CalendarsEnvelope.Extract(result) {
		var cal struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(item, &cal); err != nil || cal.ID == "" {
			continue
		}
		ids = append(ids, cal.ID)
		if len(ids) == limit {
			break
		}
	}
	if len(ids) == 0 {
		return []string{DefaultCalendarID}
	}
	return ids
}

// decodeEvents decodes each element into a RawEvent, dropping elements that
// are not event-shaped.
func decodeEvents(items []json.RawMessage) []meeting.RawEvent {
	events := make([]meeting.RawEvent, 0, len(items))
	for _, item := range items {
		var ev meeting.RawEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}

func (c *Client) fetchStandin(ctx context.Context) []meeting.RawEvent {
	logger := logging.WithSource(c.logger, instrumentation.SourceStandin)
	if c.cfg.StandinURL == "" {
		logger.Error("local stand-in failed", logging.Err(errors.New("no stand-in URL configured")))
		return nil
	}

	out := c.callAt(ctx, c.cfg.StandinURL, StandinMethod, map[string]int{
		"maxUpcoming": meeting.MaxUpcoming,
		"maxPast":     meeting.MaxPast,
	})
	if !out.OK {
		return nil
	}

	var result struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(out.Result, &result); err != nil {
		logger.Warn("unexpected stand-in result", logging.Err(err))
		return nil
	}
	return decodeEvents(result.Events)
}
