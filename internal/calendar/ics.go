package calendar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	ics "github.com/emersion/go-ical"

	"github.com/teemow/meetingbrief/internal/instrumentation"
	"github.com/teemow/meetingbrief/internal/logging"
	"github.com/teemow/meetingbrief/internal/meeting"
)

// ICSConfig configures an ICSSource.
type ICSConfig struct {
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *instrumentation.Metrics
}

// ICSSource fetches events from an ICS/iCal URL.
type ICSSource struct {
	url     string
	client  *http.Client
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewICSSource creates a new ICS calendar source.
func NewICSSource(cfg ICSConfig) *ICSSource {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ICSSource{
		url:     cfg.URL,
		client:  client,
		logger:  logging.WithSource(logger, instrumentation.SourceICS),
		metrics: cfg.Metrics,
	}
}

// FetchWindow downloads the feed and returns the events overlapping
// meeting.Window(now), sorted by start.
func (s *ICSSource) FetchWindow(ctx context.Context, now time.Time) ([]meeting.RawEvent, error) {
	start := time.Now()
	ctx, span := instrumentation.StartCalendarAPISpan(ctx, instrumentation.SourceICS, instrumentation.OperationFetchFeed)
	defer span.End()

	events, err := s.fetch(ctx, now)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		s.logger.Error("ICS feed fetch failed", logging.Err(err))
	} else {
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithCount(len(events)).Build()...)
		instrumentation.SetSpanSuccess(span)
	}
	s.metrics.RecordCalendarAPIOperation(ctx, instrumentation.SourceICS, instrumentation.OperationFetchFeed, status, time.Since(start))
	return events, err
}

func (s *ICSSource) fetch(ctx context.Context, now time.Time) ([]meeting.RawEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ICS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ICS: status %d", resp.StatusCode)
	}

	return ParseICS(resp.Body, now)
}

// ParseICS decodes every calendar in r and returns the VEVENTs overlapping
// meeting.Window(now), sorted by start. Recurring events are expanded into
// one RawEvent per occurrence inside the window. Events that cannot be
// parsed are skipped.
func ParseICS(r io.Reader, now time.Time) ([]meeting.RawEvent, error) {
	from, to := meeting.Window(now)
	dec := ics.NewDecoder(r)

	type dated struct {
		start time.Time
		event meeting.RawEvent
	}
	var out []dated

	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode ICS: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ics.CompEvent {
				continue
			}
			occs, err := parseEvent(comp, from, to)
			if err != nil {
				continue
			}
			for _, o := range occs {
				if o.end.Before(from) || o.start.After(to) {
					continue
				}
				out = append(out, dated{start: o.start, event: o.event})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })

	events := make([]meeting.RawEvent, 0, len(out))
	for _, d := range out {
		events = append(events, d.event)
	}
	return events, nil
}

type occurrence struct {
	start, end time.Time
	event      meeting.RawEvent
}

// parseEvent converts a VEVENT into one occurrence, or one per recurrence
// inside [from, to].
func parseEvent(comp *ics.Component, from, to time.Time) ([]occurrence, error) {
	base := meeting.RawEvent{
		ID:          propValue(comp, ics.PropUID),
		Summary:     propValue(comp, ics.PropSummary),
		Description: propValue(comp, ics.PropDescription),
		Attendees:   parseAttendees(comp),
	}

	startProp := comp.Props.Get(ics.PropDateTimeStart)
	if startProp == nil {
		return nil, fmt.Errorf("event %q has no DTSTART", base.ID)
	}
	start, allDay, err := parseTime(startProp)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}

	var end time.Time
	if endProp := comp.Props.Get(ics.PropDateTimeEnd); endProp != nil {
		if end, _, err = parseTime(endProp); err != nil {
			return nil, fmt.Errorf("parse end time: %w", err)
		}
	} else if durProp := comp.Props.Get(ics.PropDuration); durProp != nil {
		d, err := durProp.Duration()
		if err != nil {
			return nil, fmt.Errorf("parse duration: %w", err)
		}
		end = start.Add(d)
	} else if allDay {
		end = start.AddDate(0, 0, 1)
	} else {
		end = start
	}
	duration := end.Sub(start)

	rset, err := comp.RecurrenceSet(time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse recurrence: %w", err)
	}
	if rset == nil {
		return []occurrence{newOccurrence(base, start, end, allDay)}, nil
	}

	var occs []occurrence
	for _, at := range rset.Between(from.Add(-duration), to, true) {
		ev := base
		ev.ID = fmt.Sprintf("%s_%d", base.ID, at.Unix())
		occs = append(occs, newOccurrence(ev, at, at.Add(duration), allDay))
	}
	return occs, nil
}

func newOccurrence(ev meeting.RawEvent, start, end time.Time, allDay bool) occurrence {
	if allDay {
		ev.Start = &meeting.EventTime{Date: start.Format(time.DateOnly)}
		ev.End = &meeting.EventTime{Date: end.Format(time.DateOnly)}
	} else {
		ev.Start = &meeting.EventTime{DateTime: start.UTC().Format(time.RFC3339)}
		ev.End = &meeting.EventTime{DateTime: end.UTC().Format(time.RFC3339)}
	}
	return occurrence{start: start, end: end, event: ev}
}

// parseTime reads a DATE or DATE-TIME property. Floating times are taken as
// UTC; date-only values report allDay.
func parseTime(prop *ics.Prop) (time.Time, bool, error) {
	value := strings.TrimSpace(prop.Value)
	if len(value) == len("20060102") {
		t, err := time.ParseInLocation("20060102", value, time.UTC)
		return t, true, err
	}
	t, err := prop.DateTime(time.UTC)
	if err != nil {
		t, err = time.ParseInLocation("20060102T150405", value, time.UTC)
	}
	return t, false, err
}

func propValue(comp *ics.Component, name string) string {
	if prop := comp.Props.Get(name); prop != nil {
		return prop.Value
	}
	return ""
}

var partstat = map[string]string{
	"ACCEPTED":     "accepted",
	"DECLINED":     "declined",
	"TENTATIVE":    "tentative",
	"NEEDS-ACTION": "needsAction",
}

func parseAttendees(comp *ics.Component) []meeting.RawAttendee {
	var out []meeting.RawAttendee
	for _, prop := range comp.Props.Values(ics.PropAttendee) {
		email := prop.Value
		if len(email) > 7 && strings.EqualFold(email[:7], "mailto:") {
			email = email[7:]
		}
		if email == "" {
			continue
		}
		out = append(out, meeting.RawAttendee{
			Email:          email,
			DisplayName:    prop.Params.Get("CN"),
			ResponseStatus: partstat[strings.ToUpper(prop.Params.Get("PARTSTAT"))],
		})
	}
	return out
}
