package relay

import (
	"bytes"
	"encoding/json"
)

// strategy pulls an array out of one envelope shape.
type strategy struct {
	name    string
	extract func(raw json.RawMessage) ([]json.RawMessage, bool)
}

// Envelope is an ordered list of extraction strategies. The first strategy
// that yields an array wins, even if the array is empty.
type Envelope []strategy

// EventsEnvelope unwraps events-list tool results:
// top-level array, .items, .events, .content, .content.events, .data.items,
// and finally JSON encoded as text inside content[].text.
var EventsEnvelope = Envelope{
	{name: "array", extract: topLevelArray},
	{name: "items", extract: atPath("items")},
	{name: "events", extract: atPath("events")},
	{name: "content", extract: contentArray},
	{name: "content.events", extract: atPath("content", "events")},
	{name: "data.items", extract: atPath("data", "items")},
	{name: "content.text", extract: textBlocks(nil)},
}

// CalendarsEnvelope unwraps calendars-list tool results.
var CalendarsEnvelope = Envelope{
	{name: "array", extract: topLevelArray},
	{name: "items", extract: atPath("items")},
	{name: "calendars", extract: atPath("calendars")},
	{name: "data.items", extract: atPath("data", "items")},
	{name: "data.calendars", extract: atPath("data", "calendars")},
	{name: "content.text", extract: textBlocks(nil)},
}

func init() {
	// Text blocks carry a second, stringified envelope of the same shape.
	// Assigned here to break the initialization cycle.
	EventsEnvelope[len(EventsEnvelope)-1].extract = textBlocks(EventsEnvelope[:len(EventsEnvelope)-1])
	CalendarsEnvelope[len(CalendarsEnvelope)-1].extract = textBlocks(CalendarsEnvelope[:len(CalendarsEnvelope)-1])
}

// Extract returns the elements of the first array found by the envelope's
// strategies, or nil when none applies.
func (e Envelope) Extract(raw json.RawMessage) []json.RawMessage {
	items, _ := e.extract(raw)
	return items
}

// Strategy returns the name of the strategy that matched raw, or "".
func (e Envelope) Strategy(raw json.RawMessage) string {
	_, name := e.extract(raw)
	return name
}

func (e Envelope) extract(raw json.RawMessage) ([]json.RawMessage, string) {
	if isNull(raw) {
		return nil, ""
	}
	for _, s := range e {
		if items, ok := s.extract(raw); ok {
			return items, s.name
		}
	}
	return nil, ""
}

// Extract unwraps an events-list tool result with EventsEnvelope.
func Extract(result json.RawMessage) []json.RawMessage {
	return EventsEnvelope.Extract(result)
}

func asArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(t, &items); err != nil {
		return nil, false
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, true
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(t, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func lookup(raw json.RawMessage, path ...string) (json.RawMessage, bool) {
	cur := raw
	for _, key := range path {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func topLevelArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	return asArray(raw)
}

func atPath(path ...string) func(json.RawMessage) ([]json.RawMessage, bool) {
	return func(raw json.RawMessage) ([]json.RawMessage, bool) {
		v, ok := lookup(raw, path...)
		if !ok {
			return nil, false
		}
		return asArray(v)
	}
}

// contentArray accepts .content when it is an array of records rather than
// MCP text blocks; text blocks are handled by textBlocks.
func contentArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	v, ok := lookup(raw, "content")
	if !ok {
		return nil, false
	}
	items, ok := asArray(v)
	if !ok {
		return nil, false
	}
	if len(items) > 0 && len(textsOf(items)) == len(items) {
		return nil, false
	}
	return items, true
}

type textBlock struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

// textsOf returns the text of every element that is a text block.
func textsOf(items []json.RawMessage) []string {
	var out []string
	for _, item := range items {
		var b textBlock
		if err := json.Unmarshal(item, &b); err != nil || b.Text == nil {
			continue
		}
		out = append(out, *b.Text)
	}
	return out
}

// textBlocks parses content[].text blocks as JSON, last block first, and
// runs inner over each parsed document.
func textBlocks(inner Envelope) func(json.RawMessage) ([]json.RawMessage, bool) {
	return func(raw json.RawMessage) ([]json.RawMessage, bool) {
		v, ok := lookup(raw, "content")
		if !ok {
			return nil, false
		}
		items, ok := asArray(v)
		if !ok {
			return nil, false
		}
		texts := textsOf(items)
		for i := len(texts) - 1; i >= 0; i-- {
			doc := json.RawMessage(texts[i])
			if !json.Valid(doc) {
				continue
			}
			if got, name := inner.extract(doc); name != "" {
				return got, true
			}
		}
		return nil, false
	}
}
