// Package config assembles the process configuration for meetingbrief.
//
// Sources are applied lowest to highest priority: built-in defaults, an
// optional YAML file, a .env file, process environment variables. Command
// line flags are applied last by the cmd package.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Meeting sources selectable with MEETINGBRIEF_SOURCE.
const (
	SourceAuto   = "auto"
	SourceRelay  = "relay"
	SourceGoogle = "google"
	SourceICS    = "ics"
)

// DefaultModel is the completion model used when OPENAI_MODEL is unset.
const DefaultModel = "gpt-4o-mini"

// Config is the complete process configuration.
type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	BaseURL   string `yaml:"base_url"`
	Source    string `yaml:"source"`
	Summaries bool   `yaml:"summaries"`

	// SessionKey is a base64 encoded 32 byte AES key for the session cookie.
	// Empty leaves cookies unsealed, which is only acceptable in development.
	SessionKey string `yaml:"session_key"`

	Relay   RelayConfig   `yaml:"relay"`
	Google  GoogleConfig  `yaml:"google"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	ICS     ICSConfig     `yaml:"ics"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// RelayConfig points at the remote JSON-RPC tool relay.
type RelayConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// GoogleConfig holds the OAuth client used for Google sign-in and the
// direct Calendar API path.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// OpenAIConfig configures the completion API used for summaries.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ICSConfig points at an iCalendar feed.
type ICSConfig struct {
	URL string `yaml:"url"`
}

// MetricsConfig holds configuration for the metrics server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Debug  bool   `yaml:"debug"`
	Format string `yaml:"format"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:  ":3000",
		Source:    SourceAuto,
		Summaries: true,
		OpenAI: OpenAIConfig{
			Model: DefaultModel,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Log: LogConfig{
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), the .env file at envFile (skipped when missing) and the
// process environment.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}

	if envFile != "" {
		if err := LoadDotEnv(envFile); err != nil {
			return Config{}, err
		}
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables read through getenv onto c.
// Empty values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if v := getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString(&c.HTTPAddr, "MEETINGBRIEF_HTTP_ADDR")
	setString(&c.BaseURL, "MEETINGBRIEF_BASE_URL")
	setString(&c.Source, "MEETINGBRIEF_SOURCE")
	setBool(&c.Summaries, "MEETINGBRIEF_SUMMARIES")
	setString(&c.SessionKey, "MEETINGBRIEF_SESSION_KEY")

	setString(&c.Relay.URL, "MCP_URL", "NEXT_PUBLIC_MCP_URL")
	setString(&c.Relay.APIKey, "COMPOSIO_API_KEY")

	setString(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")

	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")

	setString(&c.ICS.URL, "ICS_FEED_URL")

	setBool(&c.Metrics.Enabled, "METRICS_ENABLED")
	setString(&c.Metrics.Addr, "METRICS_ADDR")

	setBool(&c.Log.Debug, "MEETINGBRIEF_DEBUG")
	setString(&c.Log.Format, "MEETINGBRIEF_LOG_FORMAT")
}

// Validate checks option values that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error

	switch c.Source {
	case SourceAuto, SourceRelay, SourceGoogle, SourceICS:
	default:
		errs = append(errs, fmt.Errorf("invalid source %q, must be one of: auto, relay, google, ics", c.Source))
	}

	for _, u := range []struct{ name, raw string }{
		{"base url", c.BaseURL},
		{"relay url", c.Relay.URL},
		{"openai base url", c.OpenAI.BaseURL},
		{"ics feed url", c.ICS.URL},
	} {
		if u.raw == "" {
			continue
		}
		if err := validateHTTPURL(u.raw); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", u.name, err))
		}
	}

	if _, err := c.SessionKeyBytes(); err != nil {
		errs = append(errs, err)
	}

	if c.Source == SourceRelay && c.Relay.URL == "" {
		errs = append(errs, errors.New("source relay requires MCP_URL"))
	}
	if c.Source == SourceICS && c.ICS.URL == "" {
		errs = append(errs, errors.New("source ics requires ICS_FEED_URL"))
	}
	if c.Source == SourceGoogle && !c.GoogleEnabled() {
		errs = append(errs, errors.New("source google requires GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET"))
	}

	if (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together"))
	}

	return errors.Join(errs...)
}

// SessionKeyBytes decodes SessionKey. It returns nil without error when no
// key is configured.
func (c Config) SessionKeyBytes() ([]byte, error) {
	if c.SessionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session key (must be base64 encoded): %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session key must be exactly 32 bytes (got %d bytes)", len(key))
	}
	return key, nil
}

// GoogleEnabled reports whether Google sign-in can be offered.
func (c Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// RedirectURL is the OAuth callback registered with Google.
func (c Config) RedirectURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/google/callback"
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
