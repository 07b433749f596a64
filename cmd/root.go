package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/meetingbrief/internal/config"
	"github.com/teemow/meetingbrief/internal/logging"
)

// rootCmd represents the base command for the meetingbrief application
var rootCmd = &cobra.Command{
	Use:   "meetingbrief",
	Short: "Shows your upcoming and recent meetings with short summaries",
	Long: `meetingbrief lists a user's next five and last five calendar meetings and
summarizes the past ones.

Events come from a JSON-RPC tool relay, the Google Calendar API, an ICS feed,
or a built-in stand-in with fixture meetings for local development.

It can run as:
  - A web application (serve)
  - A one-shot CLI (meetings, relay)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// Persistent flags shared by all subcommands.
var (
	configFile string
	envFile    string
	debugMode  bool
	logFormat  string
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "meetingbrief version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file; missing files are ignored")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging. Can also use MEETINGBRIEF_DEBUG env var.")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json. Can also use MEETINGBRIEF_LOG_FORMAT env var.")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMeetingsCmd())
	rootCmd.AddCommand(newRelayCmd())
	rootCmd.AddCommand(newSessionKeyCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// loadConfig reads the config file, .env file and environment, applies the
// persistent flags and installs the default logger.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return config.Config{}, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Log.Debug = debugMode
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Debug, cfg.Log.Format)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid logging configuration: %w", err)
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
