// Package commands implements the note actions: auto-tagging, calendar
// sync, analysis and reminders.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/boblangley/silverbullet-notesync/internal/calendar"
	"github.com/boblangley/silverbullet-notesync/internal/facts"
	"github.com/boblangley/silverbullet-notesync/internal/frontmatter"
	"github.com/boblangley/silverbullet-notesync/internal/metrics"
	"github.com/boblangley/silverbullet-notesync/internal/parser"
	"github.com/boblangley/silverbullet-notesync/internal/summarizer"
	"github.com/boblangley/silverbullet-notesync/internal/tagger"
	"github.com/boblangley/silverbullet-notesync/internal/taxonomy"
	"github.com/boblangley/silverbullet-notesync/internal/types"
)

var (
	// ErrCalendarUnavailable is returned when no calendar client is configured.
	ErrCalendarUnavailable = errors.New("calendar is not configured")

	// ErrSummarizerUnavailable is returned when no summarizer is configured.
	ErrSummarizerUnavailable = errors.New("summarizer is not configured")

	// ErrAnalysisExists is returned when the analysis page already exists.
	ErrAnalysisExists = errors.New("analysis page already exists")
)

// EventInserter sends events to a calendar.
type EventInserter interface {
	Insert(ctx context.Context, ev types.CalendarEvent) error
}

// Summarizer produces analyses and reminder proposals.
type Summarizer interface {
	Analyze(ctx context.Context, text string) (string, error)
	GenerateReminder(ctx context.Context, text string) (types.ReminderRequest, error)
}

// Store records command outcomes.
type Store interface {
	RecordNoteTags(ctx context.Context, note types.Note, tags []string) error
	RecordEvent(ctx context.Context, note types.Note, id string, ev types.CalendarEvent) error
}

// Config holds runner dependencies. Calendar, Summarizer, Store and Metrics
// are optional.
type Config struct {
	Parser     *parser.SpaceParser
	Classifier *tagger.Classifier
	Calendar   EventInserter
	Summarizer Summarizer
	Store      Store
	Metrics    *metrics.Collector

	EventOptions calendar.EventOptions

	Logger *slog.Logger
}

// Runner executes commands against pages of one space.
type Runner struct {
	parser     *parser.SpaceParser
	classifier *tagger.Classifier
	calendar   EventInserter
	summarizer Summarizer
	store      Store
	metrics    *metrics.Collector
	eventOpts  calendar.EventOptions
	logger     *slog.Logger
}

// AutoTagResult reports the outcome of AutoTag.
type AutoTagResult struct {
	Page    string   `json:"page"`
	Tags    []string `json:"tags"`
	Changed bool     `json:"changed"`
}

// SyncResult reports the outcome of SyncToCalendar.
type SyncResult struct {
	Page          string              `json:"page"`
	Fact          types.ExtractedFact `json:"fact"`
	EventID       string              `json:"event_id"`
	Start         string              `json:"start"`
	AlreadySynced bool                `json:"already_synced"`
}

// AnalyzeResult reports the outcome of Analyze.
type AnalyzeResult struct {
	Page         string `json:"page"`
	AnalysisPage string `json:"analysis_page"`
	Analysis     string `json:"analysis"`
}

// ReminderResult reports the outcome of AddReminder.
type ReminderResult struct {
	Page     string                `json:"page"`
	Reminder types.ReminderRequest `json:"reminder"`
	EventID  string                `json:"event_id"`
}

// NewRunner creates a runner. Parser is required; a nil Classifier uses
// the built-in taxonomy.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	classifier := cfg.Classifier
	if classifier == nil {
		var err error
		if classifier, err = tagger.NewClassifier(taxonomy.Forest(), 0); err != nil {
			return nil, fmt.Errorf("create classifier: %w", err)
		}
	}

	return &Runner{
		parser:     cfg.Parser,
		classifier: classifier,
		calendar:   cfg.Calendar,
		summarizer: cfg.Summarizer,
		store:      cfg.Store,
		metrics:    cfg.Metrics,
		eventOpts:  cfg.EventOptions,
		logger:     logger,
	}, nil
}

// read resolves page inside the space and returns its path and content.
func (r *Runner) read(page string) (string, string, error) {
	path, err := r.parser.PagePath(page)
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read page: %w", err)
	}
	return path, string(data), nil
}

// ReadPage returns the parsed note for page.
func (r *Runner) ReadPage(page string) (types.Note, error) {
	path, content, err := r.read(page)
	if err != nil {
		return types.Note{}, err
	}
	return r.parser.Parse(path, content), nil
}

// AutoTag classifies a page body and writes the tags into its frontmatter.
// The file is only rewritten when its content changes.
func (r *Runner) AutoTag(ctx context.Context, page string) (res AutoTagResult, err error) {
	defer func(start time.Time) { r.metrics.ObserveCommand("auto_tag", start, err) }(time.Now())

	path, content, err := r.read(page)
	if err != nil {
		return AutoTagResult{}, err
	}

	// The header is excluded so written tags do not feed the next run.
	tags := r.classifier.Classify(frontmatter.Strip(content))
	updated := frontmatter.MergeTags(content, tagger.FormatTagsForFrontmatter(tags))
	changed := updated != content

	if changed {
		if err := writePreservingMode(path, updated); err != nil {
			return AutoTagResult{}, err
		}
	}
	r.metrics.ObserveTagging(len(tags), changed)

	note := r.parser.Parse(path, updated)
	if r.store != nil {
		if err := r.store.RecordNoteTags(ctx, note, tags); err != nil {
			r.logger.Warn("failed to record tags", "page", note.Name, "error", err)
		}
	}

	r.logger.Info("auto-tagged page", "page", note.Name, "tags", len(tags), "changed", changed)
	return AutoTagResult{Page: note.Name, Tags: tags, Changed: changed}, nil
}

// SyncToCalendar extracts the schedule in a page and creates a calendar
// event for it. reminderAt optionally adds a popup at that RFC 3339 time.
func (r *Runner) SyncToCalendar(ctx context.Context, page, reminderAt string) (res SyncResult, err error) {
	defer func(start time.Time) { r.metrics.ObserveCommand("sync_to_calendar", start, err) }(time.Now())

	if r.calendar == nil {
		return SyncResult{}, ErrCalendarUnavailable
	}

	path, content, err := r.read(page)
	if err != nil {
		return SyncResult{}, err
	}
	note := r.parser.Parse(path, content)

	fact, err := facts.ExtractFacts(content)
	if err != nil {
		r.metrics.IncExtractionFailures()
		return SyncResult{}, fmt.Errorf("%s: %w", note.Name, err)
	}

	opts := r.eventOpts
	opts.ReminderAt = reminderAt
	ev, err := calendar.NewEvent(fact, content, opts)
	if err != nil {
		return SyncResult{}, err
	}
	ev.ID = calendar.EventID(note.Name, ev)

	res = SyncResult{Page: note.Name, Fact: fact, EventID: ev.ID, Start: ev.Start.DateTime}

	if err := r.calendar.Insert(ctx, ev); err != nil {
		if !errors.Is(err, calendar.ErrDuplicateEvent) {
			return SyncResult{}, fmt.Errorf("insert event: %w", err)
		}
		res.AlreadySynced = true
	} else {
		r.metrics.IncEventsSynced()
	}

	if r.store != nil {
		if err := r.store.RecordEvent(ctx, note, ev.ID, ev); err != nil {
			r.logger.Warn("failed to record event", "page", note.Name, "error", err)
		}
	}

	r.logger.Info("synced page to calendar", "page", note.Name, "start", ev.Start.DateTime, "already_synced", res.AlreadySynced)
	return res, nil
}

// Analyze summarizes a page into a new <basename>_analysis page at the
// space root.
func (r *Runner) Analyze(ctx context.Context, page string) (res AnalyzeResult, err error) {
	defer func(start time.Time) { r.metrics.ObserveCommand("analyze", start, err) }(time.Now())

	if r.summarizer == nil {
		return AnalyzeResult{}, ErrSummarizerUnavailable
	}

	path, content, err := r.read(page)
	if err != nil {
		return AnalyzeResult{}, err
	}

	analysis, err := r.summarizer.Analyze(ctx, content)
	if err != nil {
		return AnalyzeResult{}, err
	}

	basename := filepath.Base(path[:len(path)-len(filepath.Ext(path))])
	target := filepath.Join(r.parser.Root(), basename+"_analysis.md")

	if err := createExclusive(target, summarizer.AnalysisNote(basename, analysis)); err != nil {
		return AnalyzeResult{}, err
	}

	r.logger.Info("analysis written", "page", page, "analysis_page", basename+"_analysis")
	return AnalyzeResult{
		Page:         r.parser.Parse(path, content).Name,
		AnalysisPage: basename + "_analysis",
		Analysis:     analysis,
	}, nil
}

// AddReminder asks the summarizer for a reminder about a page and adds it
// to the calendar.
func (r *Runner) AddReminder(ctx context.Context, page string) (res ReminderResult, err error) {
	defer func(start time.Time) { r.metrics.ObserveCommand("add_reminder", start, err) }(time.Now())

	if r.summarizer == nil {
		return ReminderResult{}, ErrSummarizerUnavailable
	}
	if r.calendar == nil {
		return ReminderResult{}, ErrCalendarUnavailable
	}

	path, content, err := r.read(page)
	if err != nil {
		return ReminderResult{}, err
	}
	note := r.parser.Parse(path, content)

	reminder, err := r.summarizer.GenerateReminder(ctx, content)
	if err != nil {
		return ReminderResult{}, err
	}

	ev, err := calendar.NewReminder(reminder.Title, reminder.Description, reminder.ReminderTime, r.eventOpts)
	if err != nil {
		return ReminderResult{}, err
	}
	ev.ID = calendar.EventID(note.Name, ev)

	if err := r.calendar.Insert(ctx, ev); err == nil {
		r.metrics.IncEventsSynced()
	} else if !errors.Is(err, calendar.ErrDuplicateEvent) {
		return ReminderResult{}, fmt.Errorf("insert reminder: %w", err)
	}

	if r.store != nil {
		if err := r.store.RecordEvent(ctx, note, ev.ID, ev); err != nil {
			r.logger.Warn("failed to record reminder", "page", note.Name, "error", err)
		}
	}

	r.logger.Info("reminder added", "page", note.Name, "at", reminder.ReminderTime)
	return ReminderResult{Page: note.Name, Reminder: reminder, EventID: ev.ID}, nil
}

func writePreservingMode(path, content string) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	return nil
}

func createExclusive(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrAnalysisExists, filepath.Base(path))
	}
	if err != nil {
		return fmt.Errorf("create analysis page: %w", err)
	}

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("write analysis page: %w", err)
	}
	return f.Close()
}
