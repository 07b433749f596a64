// Package summarize produces short summaries of past meetings with an
// OpenAI-compatible completion API, falling back to a templated sentence
// when no API key is configured.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/meetingbrief/internal/instrumentation"
	"github.com/teemow/meetingbrief/internal/logging"
	"github.com/teemow/meetingbrief/internal/meeting"
)

// Defaults applied by New.
const (
	DefaultModel             = "gpt-4o-mini"
	DefaultTemperature       = 0.3
	DefaultMaxTokens         = 160
	DefaultDescriptionBudget = 1500

	// DefaultLimit is how many past meetings Apply summarizes.
	DefaultLimit = 5

	// maxConcurrent bounds in-flight completion requests.
	maxConcurrent = 5
)

const systemPrompt = "You write concise meeting summaries for internal calendars. Output 2–3 short bullet points. Avoid fluff."

var errEmptyCompletion = errors.New("completion returned no text")

// Config configures a Summarizer.
type Config struct {
	// APIKey enables completion requests. Empty selects the fallback.
	APIKey string

	// BaseURL overrides the API base, e.g. https://api.openai.com/v1.
	BaseURL string

	Model             string
	Temperature       float32
	MaxTokens         int
	DescriptionBudget int

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *instrumentation.Metrics
}

// Summarizer summarizes meetings. It is safe for concurrent use.
type Summarizer struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Summarizer. Without an API key every summary is Fallback.
func New(cfg Config) *Summarizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.DescriptionBudget <= 0 {
		cfg.DescriptionBudget = DefaultDescriptionBudget
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Summarizer{
		cfg:    cfg,
		logger: logging.WithService(cfg.Logger, "summarize"),
	}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		if cfg.HTTPClient != nil {
			clientCfg.HTTPClient = cfg.HTTPClient
		}
		s.client = openai.NewClientWithConfig(clientCfg)
	}
	return s
}

// Enabled reports whether completion requests are made.
func (s *Summarizer) Enabled() bool {
	return s.client != nil
}

// Summarize returns a summary for m. Without an API key it returns
// Fallback(m). With a key, any failure returns ("", false).
func (s *Summarizer) Summarize(ctx context.Context, m meeting.Meeting) (string, bool) {
	start := time.Now()
	if s.client == nil {
		s.cfg.Metrics.RecordSummary(ctx, instrumentation.StatusFallback, time.Since(start))
		return Fallback(m), true
	}

	ctx, span := instrumentation.StartSummarySpan(ctx, m.ID, s.cfg.Model)
	defer span.End()

	text, err := s.complete(ctx, m)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		s.cfg.Metrics.RecordSummary(ctx, instrumentation.StatusError, time.Since(start))
		s.logger.Warn("summary failed", logging.Meeting(m.ID), logging.Err(err))
		return "", false
	}

	instrumentation.SetSpanSuccess(span)
	s.cfg.Metrics.RecordSummary(ctx, instrumentation.StatusSuccess, time.Since(start))
	return text, true
}

func (s *Summarizer) complete(ctx context.Context, m meeting.Meeting) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: Prompt(m, s.cfg.DescriptionBudget)},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}

// SummarizeMany summarizes up to limit past meetings concurrently and
// returns summaries keyed by meeting id. Failed meetings are absent; they
// never affect the others.
func (s *Summarizer) SummarizeMany(ctx context.Context, meetings []meeting.Meeting, limit int) map[string]string {
	var batch []meeting.Meeting
	for _, m := range meetings {
		if len(batch) == limit {
			break
		}
		if m.IsPast {
			batch = append(batch, m)
		}
	}

	var (
		mu  sync.Mutex
		g   errgroup.Group
		out = make(map[string]string, len(batch))
	)
	g.SetLimit(maxConcurrent)
	for _, m := range batch {
		g.Go(func() error {
			text, ok := s.Summarize(ctx, m)
			if !ok || text == "" {
				return nil
			}
			mu.Lock()
			out[m.ID] = text
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Apply attaches summaries to the first DefaultLimit past meetings.
func (s *Summarizer) Apply(ctx context.Context, p meeting.Payload) meeting.Payload {
	if len(p.Past) == 0 {
		return p
	}
	summaries := s.SummarizeMany(ctx, p.Past, DefaultLimit)

	past := make([]meeting.Meeting, len(p.Past))
	copy(past, p.Past)
	for i := range past {
		if text, ok := summaries[past[i].ID]; ok {
			past[i].Summary = text
		}
	}
	p.Past = past
	return p
}

// Fallback is the templated summary used without an API key.
func Fallback(m meeting.Meeting) string {
	noun := "attendees"
	if len(m.Attendees) == 1 {
		noun = "attendee"
	}
	return fmt.Sprintf("%s: %d-minute meeting with %d %s.", m.Title, m.DurationMins, len(m.Attendees), noun)
}

// Prompt renders the user message for m.
func Prompt(m meeting.Meeting, budget int) string {
	names := make([]string, 0, len(m.Attendees))
	for _, a := range m.Attendees {
		names = append(names, a.Name())
	}
	attendees := strings.Join(names, ", ")
	if attendees == "" {
		attendees = "N/A"
	}
	notes := Truncate(Clean(m.Description), budget)
	if notes == "" {
		notes = "N/A"
	}

	return strings.Join([]string{
		"Summarize this meeting for a stand-alone card.",
		"",
		"Title: " + m.Title,
		"Start: " + m.Start,
		"End: " + m.End,
		fmt.Sprintf("Duration: %d minutes", m.DurationMins),
		"Attendees: " + attendees,
		"Notes/Description: " + notes,
	}, "\n")
}

var (
	markup     = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Clean replaces markup tags with spaces and collapses whitespace.
func Clean(s string) string {
	s = markup.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Truncate shortens s to n characters followed by an ellipsis.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
