package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/meetingbrief/internal/auth"
	"github.com/teemow/meetingbrief/internal/config"
	"github.com/teemow/meetingbrief/internal/instrumentation"
	"github.com/teemow/meetingbrief/internal/logging"
	"github.com/teemow/meetingbrief/internal/server"
)

// HTTP server timeouts. Writes allow for relay discovery plus a batch of
// completion requests.
const (
	httpReadHeaderTimeout = 10 * time.Second
	httpWriteTimeout      = 90 * time.Second
	httpIdleTimeout       = 120 * time.Second
	metricsStartTimeout   = 5 * time.Second
)

// serveFlags are the serve-only flags. They override the config file and
// environment only when set explicitly.
type serveFlags struct {
	httpAddr       string
	baseURL        string
	source         string
	summaries      bool
	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web application",
		Long: `Start the meetingbrief web application.

Routes:
  GET  /               meetings page
  GET  /login          sign-in page (demo email or Google)
  GET  /api/meetings   {upcoming, past} JSON
  POST /api/mcp        local JSON-RPC stand-in

Event sources (--source or MEETINGBRIEF_SOURCE):
  auto    Google Calendar for Google sign-ins, else the relay (MCP_URL),
          else an ICS feed (ICS_FEED_URL), else the built-in stand-in
  relay   always the relay or stand-in
  google  always the Google Calendar API
  ics     always the ICS feed

Sessions:
  Cookies are sealed with MEETINGBRIEF_SESSION_KEY (32 bytes, base64).
  Without it an ephemeral key is generated and sessions do not survive a
  restart. Generate one with: meetingbrief session-key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyServeFlags(cmd.Flags(), flags, &cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg, logger)
		},
	}

	bindServeFlags(cmd.Flags(), &flags)
	return cmd
}

func bindServeFlags(fs *pflag.FlagSet, flags *serveFlags) {
	fs.StringVar(&flags.httpAddr, "http-addr", ":3000", "HTTP server address. Can also use MEETINGBRIEF_HTTP_ADDR env var.")
	fs.StringVar(&flags.baseURL, "base-url", "", "Public base URL, used for the Google OAuth redirect. Can also use MEETINGBRIEF_BASE_URL env var. Example: https://meetings.example.com")
	fs.StringVar(&flags.source, "source", config.SourceAuto, "Event source: auto, relay, google or ics. Can also use MEETINGBRIEF_SOURCE env var.")
	fs.BoolVar(&flags.summaries, "summaries", true, "Summarize past meetings. Can also use MEETINGBRIEF_SUMMARIES env var.")
	fs.BoolVar(&flags.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	fs.StringVar(&flags.metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
}

// applyServeFlags copies explicitly set flags onto cfg.
func applyServeFlags(fs *pflag.FlagSet, flags serveFlags, cfg *config.Config) {
	if fs.Changed("http-addr") {
		cfg.HTTPAddr = flags.httpAddr
	}
	if fs.Changed("base-url") {
		cfg.BaseURL = flags.baseURL
	}
	if fs.Changed("source") {
		cfg.Source = flags.source
	}
	if fs.Changed("summaries") {
		cfg.Summaries = flags.summaries
	}
	if fs.Changed("metrics-enabled") {
		cfg.Metrics.Enabled = flags.metricsEnabled
	}
	if fs.Changed("metrics-addr") {
		cfg.Metrics.Addr = flags.metricsAddr
	}
}

// sessionKey returns the configured session key, or a freshly generated one
// when none is set.
func sessionKey(cfg config.Config, logger *slog.Logger) ([]byte, error) {
	key, err := cfg.SessionKeyBytes()
	if err != nil {
		return nil, err
	}
	if key != nil {
		return key, nil
	}

	key, err = auth.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	logger.Warn("no session key configured, generated an ephemeral one; sessions will not survive a restart",
		"env", "MEETINGBRIEF_SESSION_KEY")
	return key, nil
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	key, err := sessionKey(cfg, logger)
	if err != nil {
		return err
	}

	app, err := server.NewApp(server.Options{
		Config:     cfg,
		Version:    version,
		SessionKey: key,
		Logger:     logger,
		Metrics:    provider.Metrics(),
		Audit:      instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging),
	})
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider.Enabled() && provider.ServesPrometheus() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		WriteTimeout:      httpWriteTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// The shutdown goroutine must exist before the early returns below wait
	// on the group.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		app.Health().MarkShuttingDown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down HTTP server: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("error shutting down metrics server: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if metricsServer != nil {
		ready := make(chan struct{})
		g.Go(func() error {
			if err := metricsServer.StartWithReadySignal(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})

		select {
		case <-ready:
		case <-gctx.Done():
			return g.Wait()
		case <-time.After(metricsStartTimeout):
			stop()
			return errors.Join(errors.New("metrics server startup timed out"), g.Wait())
		}
	}

	g.Go(func() error {
		logger.Info("starting HTTP server",
			"addr", cfg.HTTPAddr,
			"source", cfg.Source,
			"relay", app.Relay().Remote(),
			"summaries", cfg.Summaries,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("HTTP server gracefully stopped")
	return nil
}
