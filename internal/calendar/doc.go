// Package calendar provides direct calendar sources that bypass the relay.
//
// Client reads events from the Google Calendar API with the signed-in
// user's OAuth token. ICSSource reads a published iCalendar feed. Both
// implement Source and return provider-shaped meeting.RawEvent values for
// the standard window around now; normalization and bucketing happen in
// package meeting.
//
// Example usage:
//
//	client, err := calendar.NewClient(ctx, calendar.Config{TokenSource: ts})
//	if err != nil {
//	    return err
//	}
//	events, err := client.FetchWindow(ctx, time.Now())
package calendar
