package calendar

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
	"os"
	"path/filepath"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"

	"github.com/boblangley/silverbullet-notesync/internal/remote"
	"github.com/boblangley/silverbullet-notesync/internal/types"
)

const (
	DefaultBaseURL    = "https://www.googleapis.com/calendar/v3"
	DefaultCalendarID = "primary"

	// Scope grants read/write access to the user's calendars.
	Scope = "https://www.googleapis.com/auth/calendar"

	// redirectURL is where Google sends the authorization code. The user
	// copies the code parameter from the browser's address bar.
	redirectURL = "http://localhost"
)

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

var (
	// ErrDuplicateEvent is returned when the calendar already holds an event
	// with the same id.
	ErrDuplicateEvent = errors.New("event already exists")

	// ErrMissingCredentials is returned when no client id or secret is set.
	ErrMissingCredentials = errors.New("google client credentials not configured")
)

// Config holds calendar client configuration.
type Config struct {
	ClientID     string
	ClientSecret string

	// TokenFile is a JSON-encoded oauth2.Token.
	TokenFile string

	CalendarID string
	BaseURL    string
	Timeout    time.Duration

	// HTTPClient replaces the OAuth2 client when set.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client inserts events into one Google calendar.
type Client struct {
	baseURL    string
	calendarID string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// OAuthConfig returns the OAuth2 configuration for the given credentials.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     googleEndpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{Scope},
	}
}

// AuthURL returns the consent page URL the user must visit once.
func AuthURL(clientID, clientSecret string) string {
	return OAuthConfig(clientID, clientSecret).AuthCodeURL("notesync", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode trades an authorization code for a token and saves it.
func ExchangeCode(ctx context.Context, clientID, clientSecret, code, tokenFile string) error {
	if clientID == "" || clientSecret == "" {
		return ErrMissingCredentials
	}
	tok, err := OAuthConfig(clientID, clientSecret).Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	return SaveToken(tokenFile, tok)
}

// LoadToken reads a token written by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// NewClient creates a calendar client. Without an explicit HTTPClient the
// credentials and token file are required.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, ErrMissingCredentials
		}
		tok, err := LoadToken(cfg.TokenFile)
		if err != nil {
			return nil, err
		}
		httpClient = OAuthConfig(cfg.ClientID, cfg.ClientSecret).Client(ctx, tok)
	}
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}

	breakerCfg := remote.DefaultBreakerConfig("google-calendar")
	breakerCfg.Logger = logger
	breakerCfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrDuplicateEvent)
	}

	return &Client{
		baseURL:    baseURL,
		calendarID: calendarID,
		http:       httpClient,
		breaker:    remote.NewBreaker(breakerCfg),
		logger:     logger,
	}, nil
}

// Insert creates ev on the calendar.
func (c *Client) Insert(ctx context.Context, ev types.CalendarEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = remote.Call(c.breaker, func() (struct{}, error) {
		return struct{}{}, c.insert(ctx, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("calendar unavailable: %w", err)
	}
	if err != nil {
		return err
	}

	c.logger.Info("calendar event created", "summary", ev.Summary, "start", ev.Start.DateTime)
	return nil
}

func (c *Client) insert(ctx context.Context, body []byte) error {
	endpoint := c.baseURL + "/calendars/" + url.PathEscape(c.calendarID) + "/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrDuplicateEvent
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("calendar API error (status %d): %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("calendar API error (status %d): %s", resp.StatusCode, string(respBody))
}
