package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/meetingbrief/internal/auth"
	"github.com/teemow/meetingbrief/internal/calendar"
	"github.com/teemow/meetingbrief/internal/config"
	"github.com/teemow/meetingbrief/internal/logging"
	"github.com/teemow/meetingbrief/internal/meeting"
	"github.com/teemow/meetingbrief/internal/relay"
	"github.com/teemow/meetingbrief/internal/server"
	"github.com/teemow/meetingbrief/internal/standin"
	"github.com/teemow/meetingbrief/internal/summarize"
)

// cliUser is the identity the meetings command loads events for.
var cliUser = auth.User{Email: "cli@localhost", Method: auth.MethodDemo}

var errGoogleNeedsBrowser = errors.New("the google source needs a browser sign-in; use the serve command instead")

func newMeetingsCmd() *cobra.Command {
	var (
		asJSON    bool
		source    string
		summaries bool
	)

	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "Print upcoming and past meetings",
		Long: `Fetch meetings from the configured source and print them.

Without MCP_URL the built-in stand-in is started on a loopback port for the
duration of the command, so the output matches what the web application
shows for a demo sign-in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("source") {
				cfg.Source = source
			}
			if cmd.Flags().Changed("summaries") {
				cfg.Summaries = summaries
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			p, err := loadMeetings(cmd.Context(), cfg, logger, time.Now())
			if err != nil {
				return err
			}
			if asJSON {
				return writeMeetingsJSON(cmd.OutOrStdout(), p)
			}
			return writeMeetingsTable(cmd.OutOrStdout(), p)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the {upcoming, past} payload as JSON")
	cmd.Flags().StringVar(&source, "source", config.SourceAuto, "Event source: auto, relay or ics")
	cmd.Flags().BoolVar(&summaries, "summaries", true, "Summarize past meetings")

	return cmd
}

// loadMeetings builds a MeetingService from cfg and loads the payload for
// the CLI user. A loopback stand-in is served while it runs when no remote
// relay is configured.
func loadMeetings(ctx context.Context, cfg config.Config, logger *slog.Logger, now time.Time) (meeting.Payload, error) {
	if cfg.Source == config.SourceGoogle {
		return meeting.Payload{}, errGoogleNeedsBrowser
	}

	relayCfg := relay.Config{
		URL:           cfg.Relay.URL,
		APIKey:        cfg.Relay.APIKey,
		Logger:        logger,
		ClientVersion: version,
	}
	if cfg.Relay.URL == "" {
		url, stop, err := startStandin(logger, now)
		if err != nil {
			return meeting.Payload{}, err
		}
		defer stop()
		relayCfg.StandinURL = url
	}

	var ics calendar.Source
	if cfg.ICS.URL != "" {
		ics = calendar.NewICSSource(calendar.ICSConfig{URL: cfg.ICS.URL, Logger: logger})
	}

	var summarizer *summarize.Summarizer
	if cfg.Summaries {
		summarizer = summarize.New(summarize.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Logger:  logger,
		})
	}

	svc := server.NewMeetingService(server.MeetingServiceConfig{
		Source:     cfg.Source,
		Relay:      relay.New(relayCfg),
		ICS:        ics,
		Summarizer: summarizer,
		Logger:     logger,
	})

	user := cliUser
	return svc.Load(ctx, &user, now)
}

// startStandin serves the stand-in on a loopback port and returns its URL
// and a stop function.
func startStandin(logger *slog.Logger, now time.Time) (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen for stand-in: %w", err)
	}

	srv := &http.Server{
		Handler: standin.New(standin.Config{
			Logger:  logger,
			Version: version,
			Now:     func() time.Time { return now },
		}),
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("stand-in server failed", logging.Err(err))
		}
	}()

	return "http://" + ln.Addr().String() + "/api/mcp", func() { _ = srv.Close() }, nil
}

func writeMeetingsJSON(w io.Writer, p meeting.Payload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func writeMeetingsTable(w io.Writer, p meeting.Payload) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	section := func(title string, meetings []meeting.Meeting, withSummary bool) {
		fmt.Fprintf(tw, "%s\n", title)
		if len(meetings) == 0 {
			fmt.Fprintf(tw, "  (none)\n\n")
			return
		}
		fmt.Fprintf(tw, "  WHEN\tMINS\tTITLE\tATTENDEES\n")
		for _, m := range meetings {
			fmt.Fprintf(tw, "  %s\t%d\t%s\t%d\n", formatStart(m.Start), m.DurationMins, m.Title, len(m.Attendees))
			if withSummary && m.Summary != "" {
				for _, line := range strings.Split(m.Summary, "\n") {
					fmt.Fprintf(tw, "  \t\t  %s\t\n", strings.TrimSpace(line))
				}
			}
		}
		fmt.Fprintln(tw)
	}

	section(fmt.Sprintf("Upcoming (next %d)", meeting.MaxUpcoming), p.Upcoming, false)
	section(fmt.Sprintf("Past (latest %d)", meeting.MaxPast), p.Past, true)
	return tw.Flush()
}

func formatStart(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("Mon 02 Jan 15:04")
}
