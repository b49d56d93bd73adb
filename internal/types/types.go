// Package types defines the core data structures for silverbullet-notesync.
package types

// TagCategory is a node of the tag taxonomy. Subcategories never nest further.
type TagCategory struct {
	Name          string        `json:"name" yaml:"name"`
	Subcategories []TagCategory `json:"subcategories,omitempty" yaml:"subcategories,omitempty"`
}

// ExtractedFact is the date, time and title found in a note.
// All three fields are always set.
type ExtractedFact struct {
	// Date is normalized to YYYY-MM-DD.
	Date string `json:"date"`

	// Time is the literal H:MM or HH:MM found in the note.
	Time string `json:"time"`

	// Title is the text of the first "# " heading.
	Title string `json:"title"`
}

// Note represents a markdown page in the space.
type Note struct {
	// Path is the absolute path to the file.
	Path string `json:"path"`

	// Name is the page name relative to the space root, without ".md".
	Name string `json:"name"`

	// FolderPath is the folder relative to the space root.
	FolderPath string `json:"folder_path"`

	// Title is the first level-one heading, if any.
	Title string `json:"title,omitempty"`

	Content     string         `json:"content"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`

	// Tags are the tags already present in frontmatter.
	Tags []string `json:"tags,omitempty"`
}

// EventDateTime is a calendar timestamp with its zone label.
type EventDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// ReminderOverride is a single calendar notification.
type ReminderOverride struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

// Reminders configures calendar notifications for an event.
type Reminders struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []ReminderOverride `json:"overrides"`
}

// CalendarEvent is the request body sent to the calendar collaborator.
type CalendarEvent struct {
	ID          string        `json:"id,omitempty"`
	Summary     string        `json:"summary"`
	Description string        `json:"description,omitempty"`
	Start       EventDateTime `json:"start"`
	End         EventDateTime `json:"end"`
	Reminders   Reminders     `json:"reminders"`
}

// ReminderRequest is what the summarizer proposes for a reminder.
type ReminderRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ReminderTime string `json:"reminderTime"`
}
