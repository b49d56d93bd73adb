// Package db records note tags and calendar events in a LadybugDB graph.
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	lbug "github.com/LadybugDB/go-ladybug"
)

// ErrClosed is returned by queries on a closed database.
var ErrClosed = errors.New("database is closed")

// Record represents a single result row from a query.
type Record map[string]any

// GraphDB wraps LadybugDB for graph operations.
type GraphDB struct {
	mu       sync.Mutex
	db       *lbug.Database
	conn     *lbug.Connection
	path     string
	readOnly bool
	logger   *slog.Logger
}

// Config holds database configuration options.
type Config struct {
	// Path is the filesystem path to the database.
	Path string

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool

	// AutoRecover attempts to recover from WAL corruption.
	AutoRecover bool

	// Logger for database operations.
	Logger *slog.Logger
}

// Open opens or creates a LadybugDB database.
func Open(cfg Config) (*GraphDB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	sysCfg := lbug.DefaultSystemConfig()
	sysCfg.ReadOnly = cfg.ReadOnly

	db, err := lbug.OpenDatabase(cfg.Path, sysCfg)
	if err != nil {
		if !cfg.AutoRecover {
			return nil, fmt.Errorf("open database: %w", err)
		}
		logger.Warn("database open failed, attempting recovery", "error", err)
		if recoverErr := removeWALFiles(cfg.Path); recoverErr != nil {
			logger.Warn("WAL removal failed", "error", recoverErr)
		}
		db, err = lbug.OpenDatabase(cfg.Path, sysCfg)
		if err != nil {
			return nil, fmt.Errorf("open database after recovery: %w", err)
		}
		logger.Info("database recovery successful")
	}

	conn, err := lbug.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open connection: %w", err)
	}

	gdb := &GraphDB{
		db:       db,
		conn:     conn,
		path:     cfg.Path,
		readOnly: cfg.ReadOnly,
		logger:   logger,
	}

	if !cfg.ReadOnly {
		gdb.initSchema()
	}

	return gdb, nil
}

func removeWALFiles(dbPath string) error {
	walPath := dbPath + ".wal"
	if _, err := os.Stat(walPath); err == nil {
		if err := os.Remove(walPath); err != nil {
			return fmt.Errorf("remove WAL file: %w", err)
		}
	}
	return nil
}

func (g *GraphDB) initSchema() {
	schemas := []string{
		`CREATE NODE TABLE IF NOT EXISTS Note(
			path STRING,
			name STRING,
			title STRING,
			folder_path STRING,
			updated_at STRING,
			PRIMARY KEY(path)
		)`,
		`CREATE NODE TABLE IF NOT EXISTS Tag(name STRING, PRIMARY KEY(name))`,
		`CREATE NODE TABLE IF NOT EXISTS Event(
			id STRING,
			title STRING,
			start STRING,
			time_zone STRING,
			PRIMARY KEY(id)
		)`,

		`CREATE REL TABLE IF NOT EXISTS TAGGED(FROM Note TO Tag, position INT64)`,
		`CREATE REL TABLE IF NOT EXISTS SUBTAG_OF(FROM Tag TO Tag)`,
		`CREATE REL TABLE IF NOT EXISTS SCHEDULES(FROM Note TO Event, synced_at STRING)`,
	}

	for _, schema := range schemas {
		if _, err := g.conn.Query(schema); err != nil {
			g.logger.Debug("schema statement", "query", schema, "error", err)
		}
	}
}

// Execute runs a Cypher query and returns all results.
func (g *GraphDB) Execute(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return nil, ErrClosed
	}

	var result *lbug.QueryResult
	var err error

	if len(params) > 0 {
		stmt, prepErr := g.conn.Prepare(query)
		if prepErr != nil {
			return nil, fmt.Errorf("prepare query: %w", prepErr)
		}
		defer stmt.Close()

		result, err = g.conn.Execute(stmt, params)
	} else {
		result, err = g.conn.Query(query)
	}

	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer result.Close()

	// Empty, not nil, so callers can tell "no rows" from an error
	records := make([]Record, 0)
	for result.HasNext() {
		tuple, err := result.Next()
		if err != nil {
			return nil, fmt.Errorf("fetch row: %w", err)
		}

		row, err := tuple.GetAsMap()
		if err != nil {
			return nil, fmt.Errorf("convert row: %w", err)
		}

		convertedRow := make(Record, len(row))
		for k, v := range row {
			convertedRow[k] = convertLbugValue(v)
		}
		records = append(records, convertedRow)
	}

	return records, nil
}

// convertLbugValue converts LadybugDB-specific types to standard Go types.
func convertLbugValue(v any) any {
	switch val := v.(type) {
	case lbug.Node:
		m := make(map[string]any, len(val.Properties)+1)
		for k, propVal := range val.Properties {
			m[k] = convertLbugValue(propVal)
		}
		m["_label"] = val.Label
		return m
	case lbug.Relationship:
		m := make(map[string]any, len(val.Properties)+1)
		for k, propVal := range val.Properties {
			m[k] = convertLbugValue(propVal)
		}
		m["_label"] = val.Label
		return m
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = convertLbugValue(item)
		}
		return result
	default:
		return v
	}
}

// ExecuteWrite runs a Cypher query that modifies data.
func (g *GraphDB) ExecuteWrite(ctx context.Context, query string, params map[string]any) error {
	if g.readOnly {
		return fmt.Errorf("database is read-only")
	}
	_, err := g.Execute(ctx, query, params)
	return err
}

// Close closes the database connection.
func (g *GraphDB) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
	}
	if g.db != nil {
		g.db.Close()
		g.db = nil
	}
	return nil
}

// Ping runs a trivial query to check the database is usable.
func (g *GraphDB) Ping(ctx context.Context) error {
	_, err := g.Execute(ctx, "RETURN 1 AS ok", nil)
	return err
}

// Path returns the database location.
func (g *GraphDB) Path() string {
	return g.path
}

// ClearDatabase removes all data from the database.
func (g *GraphDB) ClearDatabase(ctx context.Context) error {
	for _, table := range []string{"Note", "Tag", "Event"} {
		query := fmt.Sprintf("MATCH (n:%s) DETACH DELETE n", table)
		if err := g.ExecuteWrite(ctx, query, nil); err != nil {
			g.logger.Debug("clear table", "table", table, "error", err)
		}
	}
	g.logger.Info("database cleared")
	return nil
}
