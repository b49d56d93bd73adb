// Package calendar builds calendar events from note facts and sends them to
// Google Calendar.
package calendar

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boblangley/silverbullet-notesync/internal/types"
)

const (
	DefaultTimeZone  = "Asia/Tokyo"
	DefaultUTCOffset = "+09:00"

	// Notification lead times applied to every event.
	emailReminderMinutes = 24 * 60
	popupReminderMinutes = 30
)

// ErrInvalidSchedule is returned when a date, time or reminder instant does
// not form a real timestamp.
var ErrInvalidSchedule = errors.New("invalid schedule timestamp")

// EventOptions controls how extracted facts become a calendar event.
type EventOptions struct {
	// TimeZone is the IANA zone label sent with start and end.
	TimeZone string

	// UTCOffset is appended to the local timestamp, e.g. "+09:00".
	UTCOffset string

	// ReminderAt optionally adds a popup at this RFC 3339 instant.
	ReminderAt string
}

func (o EventOptions) withDefaults() EventOptions {
	if o.TimeZone == "" {
		o.TimeZone = DefaultTimeZone
	}
	if o.UTCOffset == "" {
		o.UTCOffset = DefaultUTCOffset
	}
	return o
}

// NewEvent turns an extracted fact into a zero-length event at the fact's
// date and time.
func NewEvent(fact types.ExtractedFact, description string, opts EventOptions) (types.CalendarEvent, error) {
	opts = opts.withDefaults()

	clock := fact.Time
	if len(clock) == 4 {
		clock = "0" + clock
	}
	stamp := fact.Date + "T" + clock + ":00" + opts.UTCOffset

	start, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return types.CalendarEvent{}, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, stamp, err)
	}

	ev := newEvent(fact.Title, description, stamp, opts.TimeZone)

	if opts.ReminderAt != "" {
		at, err := time.Parse(time.RFC3339, opts.ReminderAt)
		if err != nil {
			return types.CalendarEvent{}, fmt.Errorf("%w: reminder %q: %v", ErrInvalidSchedule, opts.ReminderAt, err)
		}
		minutes := int(math.Floor(start.Sub(at).Minutes()))
		if minutes > 0 {
			ev.Reminders.Overrides = append(ev.Reminders.Overrides, types.ReminderOverride{
				Method:  "popup",
				Minutes: minutes,
			})
		}
	}

	return ev, nil
}

// localLayout is an RFC 3339 timestamp without its offset.
const localLayout = "2006-01-02T15:04:05"

// NewReminder builds a reminder event at the given RFC 3339 instant. A
// timestamp without an offset is read as local time in opts.UTCOffset.
func NewReminder(title, description, at string, opts EventOptions) (types.CalendarEvent, error) {
	opts = opts.withDefaults()

	at = strings.TrimSpace(at)
	if _, err := time.Parse(localLayout, at); err == nil {
		at += opts.UTCOffset
	}
	if _, err := time.Parse(time.RFC3339, at); err != nil {
		return types.CalendarEvent{}, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, at, err)
	}
	if strings.TrimSpace(title) == "" {
		return types.CalendarEvent{}, fmt.Errorf("%w: reminder has no title", ErrInvalidSchedule)
	}

	return newEvent(title, description, at, opts.TimeZone), nil
}

func newEvent(summary, description, stamp, zone string) types.CalendarEvent {
	when := types.EventDateTime{DateTime: stamp, TimeZone: zone}
	return types.CalendarEvent{
		Summary:     summary,
		Description: description,
		Start:       when,
		End:         when,
		Reminders: types.Reminders{
			UseDefault: false,
			Overrides: []types.ReminderOverride{
				{Method: "email", Minutes: emailReminderMinutes},
				{Method: "popup", Minutes: popupReminderMinutes},
			},
		},
	}
}

// EventID derives a stable event id from the source note and the event's
// start and summary. Google accepts lowercase hex ids of 5 to 1024 chars.
func EventID(source string, ev types.CalendarEvent) string {
	name := strings.Join([]string{source, ev.Start.DateTime, ev.Summary}, "\x00")
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(name))
	return strings.ReplaceAll(id.String(), "-", "")
}
