// Package relay is a client for a JSON-RPC tool relay (an MCP server reached
// over plain HTTP POST) that exposes Google Calendar operations as tools.
//
// Every call goes through Call, which never fails loudly: transport errors,
// non-2xx statuses, undecodable bodies and JSON-RPC error objects all collapse
// to an Outcome with OK set to false. Responses may be plain JSON or framed as
// a text/event-stream, in which case the last data line carries the message.
//
// FetchMeetings runs the whole discovery flow:
//
//	initialize -> tools/list -> Catalog lookup by Capability
//	  -> calendars-list tool (ids, default "primary", capped)
//	  -> events-list tool per calendar
//	  -> Extract (ordered envelope strategies) -> meeting.Split
//
// Without a relay URL the client instead calls the local stand-in endpoint
// with the google_calendar.listEvents method and reads result.events.
//
// Each step degrades to an empty result. The worst outcome is an empty
// meeting.Payload.
package relay
