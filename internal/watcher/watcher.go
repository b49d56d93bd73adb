// Package watcher auto-tags SilverBullet pages when they change on disk.
package watcher

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/boblangley/silverbullet-notesync/internal/commands"
	"github.com/boblangley/silverbullet-notesync/internal/config"
	"github.com/boblangley/silverbullet-notesync/internal/metrics"
	"github.com/boblangley/silverbullet-notesync/internal/parser"
)

// AutoTagger tags one page.
type AutoTagger interface {
	AutoTag(ctx context.Context, page string) (commands.AutoTagResult, error)
}

// NoteStore forgets deleted pages.
type NoteStore interface {
	DeleteNote(ctx context.Context, path string) error
}

// Watcher watches a SilverBullet space for file changes.
type Watcher struct {
	spacePath string
	tagger    AutoTagger
	store     NoteStore
	parser    *parser.SpaceParser
	metrics   *metrics.Collector
	logger    *slog.Logger

	settings   config.Settings
	settingsMu sync.RWMutex

	watcher  *fsnotify.Watcher
	debounce time.Duration
	pending  map[string]time.Time
	mu       sync.Mutex

	// Hash tracking so our own write-back does not trigger another run
	fileHashes map[string]string
	hashMu     sync.RWMutex

	currentlyProcessing map[string]bool
	processingMu        sync.Mutex
}

// Config holds watcher configuration.
type Config struct {
	SpacePath string
	Tagger    AutoTagger
	Store     NoteStore
	Settings  config.Settings
	Metrics   *metrics.Collector
	Debounce  time.Duration
	Logger    *slog.Logger
}

// New creates a new file watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Tagger == nil {
		return nil, fmt.Errorf("tagger is required")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		spacePath:           cfg.SpacePath,
		tagger:              cfg.Tagger,
		store:               cfg.Store,
		parser:              parser.NewSpaceParser(cfg.SpacePath),
		metrics:             cfg.Metrics,
		logger:              logger,
		settings:            cfg.Settings,
		watcher:             fsWatcher,
		debounce:            debounce,
		pending:             make(map[string]time.Time),
		fileHashes:          make(map[string]string),
		currentlyProcessing: make(map[string]bool),
	}, nil
}

// Start begins watching the space directory.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.spacePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != w.spacePath && parser.ShouldSkipDirectory(path) {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.logger.Info("started watching space", "path", w.spacePath, "auto_tagging", w.AutoTagging())

	go w.processEvents(ctx)
	go w.processDebounced(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// AutoTagging reports whether changed pages are tagged.
func (w *Watcher) AutoTagging() bool {
	w.settingsMu.RLock()
	defer w.settingsMu.RUnlock()
	return w.settings.AutoTagging
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if !parser.IsPage(event.Name) {
				// Watch new directories
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !parser.ShouldSkipDirectory(event.Name) {
						_ = w.watcher.Add(event.Name)
					}
				}
				continue
			}

			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			now := time.Now()
			var ready []string

			for path, queueTime := range w.pending {
				if now.Sub(queueTime) >= w.debounce {
					ready = append(ready, path)
				}
			}

			for _, path := range ready {
				delete(w.pending, path)
			}
			w.mu.Unlock()

			for _, path := range ready {
				w.handleFileChange(ctx, path)
			}
		}
	}
}

// computeFileHash computes MD5 hash of file contents.
func computeFileHash(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// hasContentChanged checks if file content differs from the last seen hash.
func (w *Watcher) hasContentChanged(filePath string) bool {
	currentHash, err := computeFileHash(filePath)
	if err != nil {
		return true
	}

	w.hashMu.RLock()
	storedHash, exists := w.fileHashes[filePath]
	w.hashMu.RUnlock()

	return !exists || currentHash != storedHash
}

func (w *Watcher) updateFileHash(filePath string) {
	hash, err := computeFileHash(filePath)
	if err != nil {
		return
	}

	w.hashMu.Lock()
	w.fileHashes[filePath] = hash
	w.hashMu.Unlock()
}

func (w *Watcher) clearFileHash(filePath string) {
	w.hashMu.Lock()
	delete(w.fileHashes, filePath)
	w.hashMu.Unlock()
}

// markProcessing returns false if filePath is already being processed.
func (w *Watcher) markProcessing(filePath string) bool {
	w.processingMu.Lock()
	defer w.processingMu.Unlock()

	if w.currentlyProcessing[filePath] {
		return false
	}

	w.currentlyProcessing[filePath] = true
	return true
}

func (w *Watcher) unmarkProcessing(filePath string) {
	w.processingMu.Lock()
	delete(w.currentlyProcessing, filePath)
	w.processingMu.Unlock()
}

func (w *Watcher) handleFileChange(ctx context.Context, filePath string) {
	if !w.markProcessing(filePath) {
		w.logger.Debug("file already being processed, skipping", "path", filePath)
		return
	}
	defer w.unmarkProcessing(filePath)

	_, err := os.Stat(filePath)
	fileExists := err == nil

	if filepath.Base(filePath) == config.ConfigPage && filepath.Dir(filePath) == filepath.Clean(w.spacePath) {
		if fileExists {
			w.handleConfigChange(filePath)
		}
		return
	}

	if !fileExists {
		if w.store != nil {
			if err := w.store.DeleteNote(ctx, filePath); err != nil {
				w.logger.Error("failed to forget note", "path", filePath, "error", err)
			}
		}
		w.clearFileHash(filePath)
		w.logger.Info("page deleted", "path", filePath)
		return
	}

	if !w.hasContentChanged(filePath) {
		w.logger.Debug("file content unchanged, skipping", "path", filePath)
		return
	}
	w.metrics.IncWatcherEvents()

	if !w.AutoTagging() {
		w.updateFileHash(filePath)
		return
	}

	res, err := w.tagger.AutoTag(ctx, filePath)
	if err != nil {
		w.logger.Error("auto-tagging failed", "path", filePath, "error", err)
		return
	}

	// Hash after write-back so the resulting event is ignored
	w.updateFileHash(filePath)

	w.logger.Debug("processed page change", "page", res.Page, "tags", res.Tags, "changed", res.Changed)
}

// handleConfigChange re-reads CONFIG.md and applies notesync.* overrides.
func (w *Watcher) handleConfigChange(filePath string) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		w.logger.Error("failed to read CONFIG.md", "error", err)
		return
	}

	w.settingsMu.Lock()
	before := w.settings
	unknown := w.settings.ApplySpaceConfig(string(content))
	after := w.settings
	w.settingsMu.Unlock()

	for _, key := range unknown {
		w.logger.Warn("ignoring unsupported CONFIG.md setting", "key", key)
	}
	if pending := restartOnlyChanges(before, after); len(pending) > 0 {
		w.logger.Warn("CONFIG.md settings take effect after restart", "keys", pending)
	}
	w.logger.Info("updated space config", "auto_tagging", after.AutoTagging)
}

// restartOnlyChanges lists the changed settings that are fixed at startup.
// Only autoTagging is applied live.
func restartOnlyChanges(before, after config.Settings) []string {
	var keys []string
	if before.MaxTags != after.MaxTags {
		keys = append(keys, "notesync.maxTags")
	}
	if before.CalendarID != after.CalendarID {
		keys = append(keys, "notesync.calendarId")
	}
	if before.TimeZone != after.TimeZone {
		keys = append(keys, "notesync.timeZone")
	}
	if before.UTCOffset != after.UTCOffset {
		keys = append(keys, "notesync.utcOffset")
	}
	return keys
}

// InitialPass records the hash of every page and, when tag is set, runs
// auto-tagging on each. It returns the number of pages seen.
func (w *Watcher) InitialPass(ctx context.Context, tag bool) (int, error) {
	w.logger.Info("starting initial pass", "tag", tag)

	count := 0
	err := w.parser.WalkPages(func(path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		count++

		if tag {
			if _, err := w.tagger.AutoTag(ctx, path); err != nil {
				w.logger.Error("auto-tagging failed", "path", path, "error", err)
			}
		}
		w.updateFileHash(path)
		return nil
	})
	if err != nil {
		return count, err
	}

	w.logger.Info("initial pass complete", "pages", count)
	return count, nil
}
