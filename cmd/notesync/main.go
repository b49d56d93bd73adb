// Package main provides the entry point for the silverbullet-notesync server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/boblangley/silverbullet-notesync/internal/calendar"
	"github.com/boblangley/silverbullet-notesync/internal/commands"
	"github.com/boblangley/silverbullet-notesync/internal/config"
	"github.com/boblangley/silverbullet-notesync/internal/db"
	"github.com/boblangley/silverbullet-notesync/internal/metrics"
	"github.com/boblangley/silverbullet-notesync/internal/parser"
	"github.com/boblangley/silverbullet-notesync/internal/server"
	"github.com/boblangley/silverbullet-notesync/internal/summarizer"
	"github.com/boblangley/silverbullet-notesync/internal/tagger"
	"github.com/boblangley/silverbullet-notesync/internal/taxonomy"
	"github.com/boblangley/silverbullet-notesync/internal/watcher"
)

func main() {
	// Parse flags
	spacePath := flag.String("space", "", "Path to SilverBullet space directory")
	dbPath := flag.String("db", "", "Path to LadybugDB database (default: <space>/.notesync/graph.lbug)")
	settingsPath := flag.String("settings", "", "Path to settings JSON (default: <space>/.notesync/settings.json)")
	mcpAddr := flag.String("mcp", ":8000", "MCP HTTP server address (host:port, empty to disable)")
	healthPort := flag.Int("health-port", 8080, "Health check and metrics HTTP server port (0 to disable)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	noWatch := flag.Bool("no-watch", false, "Do not watch the space for changes")
	tagOnStart := flag.Bool("tag-on-start", false, "Auto-tag every page once at startup")
	rebuild := flag.Bool("rebuild", false, "Clear the note graph before starting")
	calendarAuth := flag.Bool("calendar-auth", false, "Print the Google OAuth consent URL and exit")
	calendarCode := flag.String("calendar-code", "", "Exchange a Google OAuth code for a token and exit")
	run := flag.String("run", "", "Run one command and exit (auto-tag, sync-calendar, analyze, add-reminder)")
	page := flag.String("page", "", "Page for -run")
	reminderAt := flag.String("reminder-at", "", "RFC 3339 popup time for -run sync-calendar")
	flag.Parse()

	// Configure logging
	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Validate required flags
	if *spacePath == "" {
		fmt.Fprintln(os.Stderr, "error: -space flag is required")
		flag.Usage()
		os.Exit(1)
	}

	absSpacePath, err := filepath.Abs(*spacePath)
	if err != nil {
		slog.Error("failed to resolve space path", "error", err)
		os.Exit(1)
	}

	settings, err := config.LoadForSpace(absSpacePath, *settingsPath)
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	tokenFile := settings.ResolveTokenFile(absSpacePath)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// OAuth setup runs without the rest of the stack
	if *calendarAuth {
		if settings.GoogleClientID == "" || settings.GoogleClientSecret == "" {
			slog.Error("googleClientId and googleClientSecret must be set")
			os.Exit(1)
		}
		fmt.Println(calendar.AuthURL(settings.GoogleClientID, settings.GoogleClientSecret))
		return
	}
	if *calendarCode != "" {
		if err := calendar.ExchangeCode(ctx, settings.GoogleClientID, settings.GoogleClientSecret, *calendarCode, tokenFile); err != nil {
			slog.Error("failed to exchange authorization code", "error", err)
			os.Exit(1)
		}
		slog.Info("calendar token saved", "path", tokenFile)
		return
	}

	// Set default database path
	if *dbPath == "" {
		*dbPath = filepath.Join(absSpacePath, config.Dir, "graph.lbug")
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Open database
	graphDB, err := db.Open(db.Config{
		Path:        *dbPath,
		AutoRecover: true,
		Logger:      logger,
	})
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer graphDB.Close()

	if *rebuild {
		if err := graphDB.ClearDatabase(ctx); err != nil {
			slog.Error("failed to clear database", "error", err)
			os.Exit(1)
		}
	}

	forest := taxonomy.Forest()
	if err := graphDB.SyncTaxonomy(ctx, forest); err != nil {
		slog.Error("failed to store taxonomy", "error", err)
		os.Exit(1)
	}

	classifier, err := tagger.NewClassifier(forest, settings.MaxTags)
	if err != nil {
		slog.Error("failed to create classifier", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	eventOpts := calendar.EventOptions{TimeZone: settings.TimeZone, UTCOffset: settings.UTCOffset}

	runnerCfg := commands.Config{
		Parser:       parser.NewSpaceParser(absSpacePath),
		Classifier:   classifier,
		Store:        graphDB,
		Metrics:      collector,
		EventOptions: eventOpts,
		Logger:       logger,
	}

	// Calendar and summarizer are optional; their commands fail until configured
	calClient, err := calendar.NewClient(ctx, calendar.Config{
		ClientID:     settings.GoogleClientID,
		ClientSecret: settings.GoogleClientSecret,
		TokenFile:    tokenFile,
		CalendarID:   settings.CalendarID,
		Logger:       logger,
	})
	if err != nil {
		slog.Warn("calendar sync disabled", "error", err)
	} else {
		runnerCfg.Calendar = calClient
	}

	sumClient, err := summarizer.New(summarizer.Config{APIKey: settings.GeminiAPIKey, Logger: logger})
	if err != nil {
		slog.Warn("analysis and reminders disabled", "error", err)
	} else {
		runnerCfg.Summarizer = sumClient
	}

	runner, err := commands.NewRunner(runnerCfg)
	if err != nil {
		slog.Error("failed to create command runner", "error", err)
		os.Exit(1)
	}

	if *run != "" {
		if err := runOnce(ctx, runner, *run, *page, *reminderAt); err != nil {
			slog.Error("command failed", "command", *run, "error", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("starting silverbullet-notesync server",
		"space", absSpacePath,
		"db", *dbPath,
		"mcp", *mcpAddr,
		"auto_tagging", settings.AutoTagging,
	)

	// Initialize watcher
	if !*noWatch || *tagOnStart {
		w, err := watcher.New(watcher.Config{
			SpacePath: absSpacePath,
			Tagger:    runner,
			Store:     graphDB,
			Settings:  settings,
			Metrics:   collector,
			Logger:    logger,
		})
		if err != nil {
			slog.Error("failed to create watcher", "error", err)
			os.Exit(1)
		}

		count, err := w.InitialPass(ctx, *tagOnStart)
		if err != nil {
			slog.Error("failed to perform initial pass", "error", err)
			os.Exit(1)
		}
		slog.Info("initial pass complete", "pages", count)

		if *noWatch {
			_ = w.Stop()
		} else {
			if err := w.Start(ctx); err != nil {
				slog.Error("failed to start watcher", "error", err)
				os.Exit(1)
			}
			defer func() { _ = w.Stop() }()
		}
	}

	// Start MCP HTTP server
	var mcpHTTPServer *http.Server
	if *mcpAddr != "" {
		mcpServer, err := server.NewMCPServer(server.MCPConfig{
			Runner:       runner,
			DB:           graphDB,
			Forest:       forest,
			MaxTags:      settings.MaxTags,
			EventOptions: eventOpts,
			Logger:       logger,
		})
		if err != nil {
			slog.Error("failed to create MCP server", "error", err)
			os.Exit(1)
		}

		mcpHTTPServer = &http.Server{
			Addr:    *mcpAddr,
			Handler: mcpServer.HTTPHandler(),
		}

		go func() {
			slog.Info("starting MCP HTTP server", "addr", *mcpAddr)
			if err := mcpHTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("MCP HTTP server error", "error", err)
			}
		}()
	}

	// Start health check server
	var healthServer *server.HealthServer
	if *healthPort > 0 {
		mcpPort := 8000
		if _, p, err := parseHostPort(*mcpAddr, 8000); err == nil {
			mcpPort = p
		}

		healthServer = server.NewHealthServer(server.HealthConfig{
			Port:    *healthPort,
			MCPPort: mcpPort,
			Graph:   graphDB,
			Metrics: collector,
			Logger:  logger,
		})

		go func() {
			if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("health server error", "error", err)
			}
		}()
	}

	slog.Info("server ready",
		"mcp", *mcpAddr,
		"health", *healthPort,
	)

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if mcpHTTPServer != nil {
		if err := mcpHTTPServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("MCP HTTP server shutdown error", "error", err)
		}
	}
	if healthServer != nil {
		if err := healthServer.Stop(shutdownCtx); err != nil {
			slog.Error("health server shutdown error", "error", err)
		}
	}
	slog.Info("server shutdown complete")
}

// runOnce executes a single command and prints its result as JSON.
func runOnce(ctx context.Context, runner *commands.Runner, name, page, reminderAt string) error {
	if page == "" {
		return fmt.Errorf("-page is required with -run")
	}

	var (
		result any
		err    error
	)
	switch name {
	case "auto-tag":
		result, err = runner.AutoTag(ctx, page)
	case "sync-calendar":
		result, err = runner.SyncToCalendar(ctx, page, reminderAt)
	case "analyze":
		result, err = runner.Analyze(ctx, page)
	case "add-reminder":
		result, err = runner.AddReminder(ctx, page)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// parseHostPort extracts host and port from an address string.
func parseHostPort(addr string, defaultPort int) (string, int, error) {
	if addr == "" {
		return "", defaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// Maybe it's just a port like ":8000"
		if addr[0] == ':' {
			portStr = addr[1:]
			host = ""
		} else {
			return "", 0, err
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort, nil
	}
	return host, port, nil
}
