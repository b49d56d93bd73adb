// Package summarizer talks to the Gemini generateContent API to analyze
// notes and propose reminders.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/boblangley/silverbullet-notesync/internal/remote"
	"github.com/boblangley/silverbullet-notesync/internal/types"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-pro"

	analyzePrompt  = "以下のテキストを分析し、重要なポイントを箇条書きでまとめてください：\n\n"
	reminderPrompt = "以下のテキストからリマインダーを作成してください。" +
		"次のキーを持つJSONオブジェクトだけを返してください: " +
		`"title"（短い件名）, "description"（詳細）, "reminderTime"（RFC 3339 形式の日時）` +
		"\n\n"
)

var (
	// ErrMissingAPIKey is returned when no Gemini API key is configured.
	ErrMissingAPIKey = errors.New("gemini API key not configured")

	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("model returned no content")
)

// Config holds summarizer configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the Gemini API.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// New creates a summarizer client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	breakerCfg := remote.DefaultBreakerConfig("gemini")
	breakerCfg.Logger = logger

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		http:    httpClient,
		breaker: remote.NewBreaker(breakerCfg),
		logger:  logger,
	}, nil
}

// Analyze returns a bullet-point summary of text.
func (c *Client) Analyze(ctx context.Context, text string) (string, error) {
	out, err := c.generate(ctx, analyzePrompt+text)
	if err != nil {
		return "", fmt.Errorf("analyze: %w", err)
	}
	return out, nil
}

// GenerateReminder asks the model for a reminder describing text.
func (c *Client) GenerateReminder(ctx context.Context, text string) (types.ReminderRequest, error) {
	out, err := c.generate(ctx, reminderPrompt+text)
	if err != nil {
		return types.ReminderRequest{}, fmt.Errorf("generate reminder: %w", err)
	}

	reminder, err := ParseReminder(out)
	if err != nil {
		return types.ReminderRequest{}, fmt.Errorf("generate reminder: %w", err)
	}
	return reminder, nil
}

// ParseReminder decodes a reminder from a model reply. Markdown code fences
// and surrounding prose are tolerated.
func ParseReminder(reply string) (types.ReminderRequest, error) {
	body := strings.TrimSpace(reply)
	if start := strings.Index(body, "{"); start >= 0 {
		if end := strings.LastIndex(body, "}"); end > start {
			body = body[start : end+1]
		}
	}

	var reminder types.ReminderRequest
	if err := json.Unmarshal([]byte(body), &reminder); err != nil {
		return types.ReminderRequest{}, fmt.Errorf("parse reminder JSON: %w", err)
	}
	if reminder.Title == "" || reminder.ReminderTime == "" {
		return types.ReminderRequest{}, fmt.Errorf("parse reminder JSON: title and reminderTime are required")
	}
	return reminder, nil
}

// AnalysisNote renders the page written next to an analyzed note.
func AnalysisNote(basename, analysis string) string {
	return "# " + basename + "の分析\n\n" + analysis
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	return remote.Call(c.breaker, func() (string, error) {
		return c.call(ctx, prompt)
	})
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(respBody))
		}
		return "", fmt.Errorf("parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if result.Error != nil {
			return "", fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, result.Error.Message)
		}
		return "", fmt.Errorf("gemini API error (status %d)", resp.StatusCode)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	c.logger.Debug("gemini request completed", "model", c.model, "duration", time.Since(start))
	return sb.String(), nil
}
