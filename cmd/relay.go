package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teemow/meetingbrief/internal/config"
	"github.com/teemow/meetingbrief/internal/relay"
)

var errNoRelay = errors.New("no relay configured (set MCP_URL)")

func newRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Inspect the configured tool relay",
		Long: `Inspect the remote tool relay configured with MCP_URL and
COMPOSIO_API_KEY.`,
	}

	cmd.AddCommand(newRelayToolsCmd(), newRelayStatusCmd(), newRelayConnectCmd())
	return cmd
}

func newRelayToolsCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the relay's tools and the capabilities they serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := relayClient(cmd)
			if err != nil {
				return err
			}
			if raw {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), client.RawToolsList(cmd.Context()))
				return err
			}

			cat, err := client.Discover(cmd.Context())
			if err != nil && !errors.Is(err, relay.ErrNoEventsTool) {
				return err
			}
			if werr := writeCatalog(cmd.OutOrStdout(), cat); werr != nil {
				return werr
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw tools/list response")
	return cmd
}

func newRelayStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the calendar account is connected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := relayClient(cmd)
			if err != nil {
				return err
			}
			status := "not connected"
			if client.CheckConnection(cmd.Context()) {
				status = "connected"
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), status)
			return err
		},
	}
}

func newRelayConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Print the URL that connects a calendar account to the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := relayClient(cmd)
			if err != nil {
				return err
			}
			if client.CheckConnection(cmd.Context()) {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "already connected")
				return err
			}
			connectURL, ok := client.InitiateConnection(cmd.Context())
			if !ok {
				return fmt.Errorf("relay did not return a connect URL")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), connectURL)
			return err
		},
	}
}

// relayClient builds a client for the remote relay. Every relay subcommand
// requires MCP_URL.
func relayClient(cmd *cobra.Command) (*relay.Client, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newRemoteRelay(cfg, logger)
}

func newRemoteRelay(cfg config.Config, logger *slog.Logger) (*relay.Client, error) {
	if cfg.Relay.URL == "" {
		return nil, errNoRelay
	}
	return relay.New(relay.Config{
		URL:           cfg.Relay.URL,
		APIKey:        cfg.Relay.APIKey,
		Logger:        logger,
		ClientVersion: version,
	}), nil
}

func writeCatalog(w io.Writer, cat relay.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCAPABILITY\tDESCRIPTION")

	used := make(map[string]relay.Capability)
	for _, c := range []relay.Capability{relay.CapabilityEventsList, relay.CapabilityCalendarsList} {
		if t, ok := cat.Lookup(c); ok {
			used[t.Name] = c
		}
	}
	for _, t := range cat.Tools() {
		capability := "-"
		if c, ok := used[t.Name]; ok {
			capability = c.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, capability, t.Description)
	}
	return tw.Flush()
}
