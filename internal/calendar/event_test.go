package calendar

import (
	"errors"
	"reflect"
	"regexp"
	"testing"

	"github.com/boblangley/silverbullet-notesync/internal/types"
)

func TestNewEventDefaults(t *testing.T) {
	fact := types.ExtractedFact{Date: "2024-03-05", Time: "9:30", Title: "Standup"}

	ev, err := NewEvent(fact, "daily sync", EventOptions{})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}

	want := types.CalendarEvent{
		Summary:     "Standup",
		Description: "daily sync",
		Start:       types.EventDateTime{DateTime: "2024-03-05T09:30:00+09:00", TimeZone: "Asia/Tokyo"},
		End:         types.EventDateTime{DateTime: "2024-03-05T09:30:00+09:00", TimeZone: "Asia/Tokyo"},
		Reminders: types.Reminders{
			UseDefault: false,
			Overrides: []types.ReminderOverride{
				{Method: "email", Minutes: 1440},
				{Method: "popup", Minutes: 30},
			},
		},
	}
	if !reflect.DeepEqual(ev, want) {
		t.Errorf("NewEvent() = %+v\nwant %+v", ev, want)
	}
}

func TestNewEventCustomZone(t *testing.T) {
	fact := types.ExtractedFact{Date: "2024-07-01", Time: "14:00", Title: "Review"}

	ev, err := NewEvent(fact, "", EventOptions{TimeZone: "Europe/Berlin", UTCOffset: "+02:00"})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	if ev.Start.DateTime != "2024-07-01T14:00:00+02:00" {
		t.Errorf("Start.DateTime = %q", ev.Start.DateTime)
	}
	if ev.Start.TimeZone != "Europe/Berlin" || ev.End.TimeZone != "Europe/Berlin" {
		t.Errorf("time zone = %q/%q", ev.Start.TimeZone, ev.End.TimeZone)
	}
}

func TestNewEventReminderAt(t *testing.T) {
	fact := types.ExtractedFact{Date: "2024-03-05", Time: "14:30", Title: "Meeting"}

	tests := []struct {
		name       string
		reminderAt string
		wantExtra  int
	}{
		{"two hours before", "2024-03-05T12:30:00+09:00", 120},
		{"partial minute floors", "2024-03-05T14:28:30+09:00", 1},
		{"other offset", "2024-03-05T03:30:00Z", 120},
		{"at start adds nothing", "2024-03-05T14:30:00+09:00", 0},
		{"after start adds nothing", "2024-03-05T15:00:00+09:00", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := NewEvent(fact, "", EventOptions{ReminderAt: tc.reminderAt})
			if err != nil {
				t.Fatalf("NewEvent() error = %v", err)
			}
			overrides := ev.Reminders.Overrides
			if tc.wantExtra == 0 {
				if len(overrides) != 2 {
					t.Fatalf("expected only default overrides, got %+v", overrides)
				}
				return
			}
			if len(overrides) != 3 {
				t.Fatalf("expected 3 overrides, got %+v", overrides)
			}
			extra := overrides[2]
			if extra.Method != "popup" || extra.Minutes != tc.wantExtra {
				t.Errorf("extra override = %+v, want popup %d", extra, tc.wantExtra)
			}
		})
	}
}

func TestNewEventInvalidSchedule(t *testing.T) {
	tests := []struct {
		name string
		fact types.ExtractedFact
		opts EventOptions
	}{
		{"month 13", types.ExtractedFact{Date: "2024-13-01", Time: "10:00", Title: "x"}, EventOptions{}},
		{"february 30", types.ExtractedFact{Date: "2024-02-30", Time: "10:00", Title: "x"}, EventOptions{}},
		{"hour 25", types.ExtractedFact{Date: "2024-02-01", Time: "25:00", Title: "x"}, EventOptions{}},
		{"minute 61", types.ExtractedFact{Date: "2024-02-01", Time: "10:61", Title: "x"}, EventOptions{}},
		{"bad offset", types.ExtractedFact{Date: "2024-02-01", Time: "10:00", Title: "x"}, EventOptions{UTCOffset: "JST"}},
		{"bad reminder", types.ExtractedFact{Date: "2024-02-01", Time: "10:00", Title: "x"}, EventOptions{ReminderAt: "tomorrow"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEvent(tc.fact, "", tc.opts)
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("expected ErrInvalidSchedule, got %v", err)
			}
		})
	}
}

func TestNewReminder(t *testing.T) {
	ev, err := NewReminder("Call back", "about the invoice", "2024-05-01T10:00:00+09:00", EventOptions{})
	if err != nil {
		t.Fatalf("NewReminder() error = %v", err)
	}
	if ev.Summary != "Call back" || ev.Description != "about the invoice" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Start.DateTime != "2024-05-01T10:00:00+09:00" || ev.End != ev.Start {
		t.Errorf("unexpected times %+v / %+v", ev.Start, ev.End)
	}
	if len(ev.Reminders.Overrides) != 2 {
		t.Errorf("expected default overrides, got %+v", ev.Reminders.Overrides)
	}

	if _, err := NewReminder("x", "", "2024-05-01 10:00", EventOptions{}); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule for non-RFC3339 time, got %v", err)
	}
	if _, err := NewReminder("  ", "", "2024-05-01T10:00:00Z", EventOptions{}); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule for empty title, got %v", err)
	}
}

func TestNewReminderLocalTime(t *testing.T) {
	tests := []struct {
		name string
		at   string
		opts EventOptions
		want string
	}{
		{"default offset", "2024-03-05T10:00:00", EventOptions{}, "2024-03-05T10:00:00+09:00"},
		{"configured offset", "2024-03-05T10:00:00", EventOptions{TimeZone: "UTC", UTCOffset: "Z"}, "2024-03-05T10:00:00Z"},
		{"surrounding space", " 2024-03-05T10:00:00\n", EventOptions{UTCOffset: "-05:00"}, "2024-03-05T10:00:00-05:00"},
		{"offset kept", "2024-03-05T10:00:00+01:00", EventOptions{}, "2024-03-05T10:00:00+01:00"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := NewReminder("Call back", "", tc.at, tc.opts)
			if err != nil {
				t.Fatalf("NewReminder() error = %v", err)
			}
			if ev.Start.DateTime != tc.want {
				t.Errorf("start = %q, want %q", ev.Start.DateTime, tc.want)
			}
		})
	}

	if _, err := NewReminder("x", "", "2024-13-05T10:00:00", EventOptions{}); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule for month 13, got %v", err)
	}
}

func TestEventID(t *testing.T) {
	ev, err := NewEvent(types.ExtractedFact{Date: "2024-03-05", Time: "14:30", Title: "Meeting"}, "", EventOptions{})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}

	id := EventID("journal/2024-03-05", ev)
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(id) {
		t.Errorf("EventID() = %q, want 32 lowercase hex chars", id)
	}
	if again := EventID("journal/2024-03-05", ev); again != id {
		t.Errorf("EventID() not stable: %q vs %q", id, again)
	}
	if other := EventID("journal/2024-03-06", ev); other == id {
		t.Error("different source should give a different id")
	}

	moved := ev
	moved.Start.DateTime = "2024-03-05T15:30:00+09:00"
	if EventID("journal/2024-03-05", moved) == id {
		t.Error("different start should give a different id")
	}
}
