package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/boblangley/silverbullet-notesync/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, calendarID string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Config{
		BaseURL:    srv.URL,
		CalendarID: calendarID,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func testEvent(t *testing.T) types.CalendarEvent {
	t.Helper()
	ev, err := NewEvent(types.ExtractedFact{Date: "2024-03-05", Time: "14:30", Title: "Meeting"}, "notes", EventOptions{})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	return ev
}

func TestClientInsert(t *testing.T) {
	var gotPath, gotMethod string
	var gotEvent types.CalendarEvent

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotMethod = r.Method
		if err := json.NewDecoder(r.Body).Decode(&gotEvent); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}, "team@example.com")

	ev := testEvent(t)
	if err := c.Insert(context.Background(), ev); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotPath != "/calendars/team@example.com/events" {
		t.Errorf("path = %s", gotPath)
	}
	if gotEvent.Summary != "Meeting" || gotEvent.Start.DateTime != ev.Start.DateTime {
		t.Errorf("server received %+v", gotEvent)
	}
	if len(gotEvent.Reminders.Overrides) != 2 {
		t.Errorf("reminders not sent: %+v", gotEvent.Reminders)
	}
}

func TestClientInsertDefaultsToPrimary(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}, "")

	if err := c.Insert(context.Background(), testEvent(t)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if gotPath != "/calendars/primary/events" {
		t.Errorf("path = %s", gotPath)
	}
}

func TestClientInsertDuplicate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":409,"message":"The requested identifier already exists."}}`))
	}, "")

	err := c.Insert(context.Background(), testEvent(t))
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Errorf("expected ErrDuplicateEvent, got %v", err)
	}
}

func TestClientInsertAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Insufficient Permission"}}`))
	}, "")

	err := c.Insert(context.Background(), testEvent(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "Insufficient Permission") {
		t.Errorf("error should carry status and message: %v", err)
	}
}

func TestClientBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, "")

	ev := testEvent(t)
	for i := 0; i < 3; i++ {
		if err := c.Insert(context.Background(), ev); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	err := c.Insert(context.Background(), ev)
	if err == nil || !strings.Contains(err.Error(), "calendar unavailable") {
		t.Errorf("expected open breaker error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3", calls.Load())
	}
}

func TestClientDuplicatesDoNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}, "")

	ev := testEvent(t)
	for i := 0; i < 5; i++ {
		if err := c.Insert(context.Background(), ev); !errors.Is(err, ErrDuplicateEvent) {
			t.Fatalf("call %d: expected ErrDuplicateEvent, got %v", i, err)
		}
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}

	_, err = NewClient(context.Background(), Config{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenFile:    filepath.Join(t.TempDir(), "missing.json"),
	})
	if err == nil {
		t.Error("expected error for missing token file")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	if err := SaveToken(path, tok); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	got, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken() error = %v", err)
	}
	if got.AccessToken != "access" || got.RefreshToken != "refresh" || !got.Expiry.Equal(tok.Expiry) {
		t.Errorf("LoadToken() = %+v", got)
	}

	c, err := NewClient(context.Background(), Config{ClientID: "id", ClientSecret: "secret", TokenFile: path})
	if err != nil {
		t.Fatalf("NewClient() with token error = %v", err)
	}
	if c.calendarID != DefaultCalendarID || c.baseURL != DefaultBaseURL {
		t.Errorf("unexpected defaults: %q %q", c.calendarID, c.baseURL)
	}
}

func TestAuthURL(t *testing.T) {
	u := AuthURL("my-client", "secret")
	for _, want := range []string{"accounts.google.com", "client_id=my-client", "access_type=offline", "auth%2Fcalendar"} {
		if !strings.Contains(u, want) {
			t.Errorf("AuthURL() = %q, missing %q", u, want)
		}
	}
}
