package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/meetingbrief/internal/config"
	"github.com/teemow/meetingbrief/internal/relay"
)

func TestNewRemoteRelay(t *testing.T) {
	_, err := newRemoteRelay(config.Default(), discardLogger())
	assert.ErrorIs(t, err, errNoRelay)

	cfg := config.Default()
	cfg.Relay.URL = "https://relay.example.com/mcp"
	client, err := newRemoteRelay(cfg, discardLogger())
	require.NoError(t, err)
	assert.True(t, client.Remote())
}

func TestWriteCatalog(t *testing.T) {
	cat := relay.NewCatalog([]relay.Tool{
		{Name: "GOOGLECALENDAR_EVENTS_LIST", Description: "List events"},
		{Name: "GOOGLECALENDAR_LIST_CALENDARS", Description: "List calendars"},
		{Name: "GMAIL_SEND", Description: "Send mail"},
	})

	var buf bytes.Buffer
	require.NoError(t, writeCatalog(&buf, cat))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "CAPABILITY")
	assert.Contains(t, lines[1], "events-list")
	assert.Contains(t, lines[2], "calendars-list")
	assert.Contains(t, lines[3], "GMAIL_SEND")
	assert.NotContains(t, lines[3], "list")
}
