// Package metrics exposes Prometheus counters for tagging and calendar sync.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "notesync"

// Collector holds all Prometheus metrics for the application.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	NotesTagged        prometheus.Counter
	NotesUnchanged     prometheus.Counter
	TagsAssigned       prometheus.Counter
	EventsSynced       prometheus.Counter
	ExtractionFailures prometheus.Counter
	WatcherEvents      prometheus.Counter
}

// NewCollector creates a collector on its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "commands_total",
				Help:      "Total number of commands run",
			},
			[]string{"command", "status"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "command_duration_seconds",
				Help:      "Command duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		NotesTagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notes_tagged_total",
			Help:      "Total number of notes whose tags line was rewritten",
		}),
		NotesUnchanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notes_unchanged_total",
			Help:      "Total number of auto-tag runs that left the note as it was",
		}),
		TagsAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tags_assigned_total",
			Help:      "Total number of tags assigned by the classifier",
		}),
		EventsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "calendar_events_synced_total",
			Help:      "Total number of events sent to the calendar",
		}),
		ExtractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "extraction_failures_total",
			Help:      "Total number of notes missing a date, time or title",
		}),
		WatcherEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "watcher_events_total",
			Help:      "Total number of debounced file changes handled",
		}),
	}

	registry.MustRegister(
		c.Commands,
		c.CommandDuration,
		c.NotesTagged,
		c.NotesUnchanged,
		c.TagsAssigned,
		c.EventsSynced,
		c.ExtractionFailures,
		c.WatcherEvents,
		collectors.NewGoCollector(),
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one command run.
func (c *Collector) ObserveCommand(command string, start time.Time, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Commands.WithLabelValues(command, status).Inc()
	c.CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

// ObserveTagging records the outcome of one auto-tag run.
func (c *Collector) ObserveTagging(tagCount int, changed bool) {
	if c == nil {
		return
	}
	c.TagsAssigned.Add(float64(tagCount))
	if changed {
		c.NotesTagged.Inc()
	} else {
		c.NotesUnchanged.Inc()
	}
}

// IncEventsSynced counts one calendar insert.
func (c *Collector) IncEventsSynced() {
	if c == nil {
		return
	}
	c.EventsSynced.Inc()
}

// IncExtractionFailures counts one note without a full schedule.
func (c *Collector) IncExtractionFailures() {
	if c == nil {
		return
	}
	c.ExtractionFailures.Inc()
}

// IncWatcherEvents counts one debounced file change.
func (c *Collector) IncWatcherEvents() {
	if c == nil {
		return
	}
	c.WatcherEvents.Inc()
}
