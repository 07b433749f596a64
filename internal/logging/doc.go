// Package logging provides structured logging helpers for meetingbrief.
//
// Everything logs through log/slog. This package builds the process logger
// from the --debug and --log-format flags and centralizes attribute names so
// that relay, calendar, summarizer and HTTP logs can be queried the same way.
//
//	logger := logging.WithOperation(slog.Default(), "relay.fetch_meetings")
//	logger.Warn("events call failed", logging.Tool(name), logging.Err(err))
//
// User emails are logged as hashes (UserHash) and tokens never appear in
// output (SanitizeToken).
package logging
