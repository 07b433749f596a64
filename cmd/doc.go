// Package cmd implements the command-line interface for meetingbrief.
//
// This package provides the following commands:
//   - serve: Start the web application, the stand-in relay and the metrics server
//   - meetings: Fetch and print the bucketed meetings once
//   - relay: Inspect and connect a remote JSON-RPC tool relay
//   - session-key: Generate a session cookie key
//   - version: Display version information
package cmd
