// Package server provides the MCP and health HTTP servers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/boblangley/silverbullet-notesync/internal/calendar"
	"github.com/boblangley/silverbullet-notesync/internal/commands"
	"github.com/boblangley/silverbullet-notesync/internal/db"
	"github.com/boblangley/silverbullet-notesync/internal/facts"
	"github.com/boblangley/silverbullet-notesync/internal/frontmatter"
	"github.com/boblangley/silverbullet-notesync/internal/tagger"
	"github.com/boblangley/silverbullet-notesync/internal/taxonomy"
	"github.com/boblangley/silverbullet-notesync/internal/types"
	"github.com/boblangley/silverbullet-notesync/internal/version"
)

// MCPServer provides the MCP interface to silverbullet-notesync.
type MCPServer struct {
	server     *mcp.Server
	runner     *commands.Runner
	db         *db.GraphDB
	classifier *tagger.Classifier
	forest     []types.TagCategory
	eventOpts  calendar.EventOptions
	logger     *slog.Logger
}

// MCPConfig holds MCP server configuration. DB is optional; without it the
// graph tools report an error.
type MCPConfig struct {
	Runner       *commands.Runner
	DB           *db.GraphDB
	Forest       []types.TagCategory
	MaxTags      int
	EventOptions calendar.EventOptions
	Logger       *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(cfg MCPConfig) (*MCPServer, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	forest := cfg.Forest
	if forest == nil {
		forest = taxonomy.Forest()
	}
	classifier, err := tagger.NewClassifier(forest, cfg.MaxTags)
	if err != nil {
		return nil, fmt.Errorf("create classifier: %w", err)
	}

	server := mcp.NewServer(
		&mcp.Implementation{Name: version.Name, Version: version.Version},
		nil,
	)

	m := &MCPServer{
		server:     server,
		runner:     cfg.Runner,
		db:         cfg.DB,
		classifier: classifier,
		forest:     forest,
		eventOpts:  cfg.EventOptions,
		logger:     logger,
	}

	m.registerTools()
	return m, nil
}

// HTTPHandler returns an http.Handler that serves the MCP protocol over HTTP
// using the streamable HTTP transport.
func (m *MCPServer) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return m.server
		},
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
			Logger:       m.logger,
		},
	)
}

func (m *MCPServer) registerTools() {
	// Tagging tools
	m.registerClassifyContent()
	m.registerFormatTags()
	m.registerMergeTags()
	m.registerGetTaxonomy()

	// Schedule tools
	m.registerExtractEvent()

	// Page commands
	m.registerReadPage()
	m.registerAutoTagPage()
	m.registerSyncToCalendar()
	m.registerAnalyzePage()
	m.registerAddReminder()

	// Graph tools
	m.registerNotesByTag()
	m.registerCypherQuery()
	m.registerGetGraphSchema()
}

// Tool result helper
func toolResult(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, nil
}

// Error result helper
func errorResult(err error) (*mcp.CallToolResult, error) {
	return toolResult(map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

// respond turns a handler outcome into a tool result.
func (m *MCPServer) respond(tool string, data map[string]any, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		m.logger.Error("tool failed", "tool", tool, "error", err)
		res, _ := errorResult(err)
		return res, nil, nil
	}
	data["success"] = true
	res, _ := toolResult(data)
	return res, nil, nil
}

// ============ Tagging Tools ============

type classifyContentInput struct {
	Content string `json:"content" jsonschema:"Note text to classify"`
}

func (m *MCPServer) classifyContent(input classifyContentInput) map[string]any {
	tags := m.classifier.Classify(input.Content)
	return map[string]any{
		"tags":      tags,
		"formatted": tagger.FormatTagsForFrontmatter(tags),
	}
}

func (m *MCPServer) registerClassifyContent() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "classify_content",
		Description: "Pick up to seven taxonomy tags that are relevant to a piece of text",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input classifyContentInput) (*mcp.CallToolResult, any, error) {
		return m.respond("classify_content", m.classifyContent(input), nil)
	})
}

type formatTagsInput struct {
	Tags []string `json:"tags" jsonschema:"Tag names without the leading #"`
}

func (m *MCPServer) registerFormatTags() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "format_tags",
		Description: "Render tag names as a frontmatter tags value (#a #b)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input formatTagsInput) (*mcp.CallToolResult, any, error) {
		return m.respond("format_tags", map[string]any{
			"formatted": tagger.FormatTagsForFrontmatter(input.Tags),
		}, nil)
	})
}

type mergeTagsInput struct {
	Document      string   `json:"document" jsonschema:"Full markdown document"`
	Tags          []string `json:"tags,omitempty" jsonschema:"Tag names to write"`
	FormattedTags string   `json:"formatted_tags,omitempty" jsonschema:"Pre-formatted tags value; overrides tags"`
}

func mergeTags(input mergeTagsInput) map[string]any {
	formatted := input.FormattedTags
	if formatted == "" {
		formatted = tagger.FormatTagsForFrontmatter(input.Tags)
	}
	merged := frontmatter.MergeTags(input.Document, formatted)
	return map[string]any{
		"document": merged,
		"changed":  merged != input.Document,
	}
}

func (m *MCPServer) registerMergeTags() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "merge_tags",
		Description: "Write a tags line into a document's frontmatter, creating the header if needed",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input mergeTagsInput) (*mcp.CallToolResult, any, error) {
		return m.respond("merge_tags", mergeTags(input), nil)
	})
}

func (m *MCPServer) registerGetTaxonomy() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "get_taxonomy",
		Description: "List the tag taxonomy used for classification",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
		return m.respond("get_taxonomy", map[string]any{
			"taxonomy": m.forest,
			"names":    taxonomy.Names(m.forest),
		}, nil)
	})
}

// ============ Schedule Tools ============

type extractEventInput struct {
	Content    string `json:"content" jsonschema:"Note text containing a date, a time and a # heading"`
	ReminderAt string `json:"reminder_at,omitempty" jsonschema:"Optional RFC 3339 time for a popup reminder"`
}

func (m *MCPServer) extractEvent(input extractEventInput) (map[string]any, error) {
	fact, err := facts.ExtractFacts(input.Content)
	if err != nil {
		return nil, err
	}

	opts := m.eventOpts
	opts.ReminderAt = input.ReminderAt
	ev, err := calendar.NewEvent(fact, input.Content, opts)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"fact":  fact,
		"event": ev,
	}, nil
}

func (m *MCPServer) registerExtractEvent() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "extract_event",
		Description: "Extract the date, time and title from text and build the calendar event without sending it",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input extractEventInput) (*mcp.CallToolResult, any, error) {
		data, err := m.extractEvent(input)
		return m.respond("extract_event", data, err)
	})
}

// ============ Page Tools ============

type pageInput struct {
	Page string `json:"page" jsonschema:"Page name relative to the space (e.g. journal/2024-03-05)"`
}

func (m *MCPServer) readPage(input pageInput) (map[string]any, error) {
	note, err := m.runner.ReadPage(input.Page)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":        note.Name,
		"title":       note.Title,
		"folder_path": note.FolderPath,
		"tags":        note.Tags,
		"content":     note.Content,
	}, nil
}

func (m *MCPServer) registerReadPage() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "read_page",
		Description: "Read the contents of a Silverbullet page",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input pageInput) (*mcp.CallToolResult, any, error) {
		data, err := m.readPage(input)
		return m.respond("read_page", data, err)
	})
}

func (m *MCPServer) registerAutoTagPage() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "auto_tag_page",
		Description: "Classify a page and write the tags into its frontmatter",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input pageInput) (*mcp.CallToolResult, any, error) {
		res, err := m.runner.AutoTag(ctx, input.Page)
		return m.respond("auto_tag_page", map[string]any{"result": res}, err)
	})
}

type syncToCalendarInput struct {
	Page       string `json:"page" jsonschema:"Page name relative to the space"`
	ReminderAt string `json:"reminder_at,omitempty" jsonschema:"Optional RFC 3339 time for a popup reminder"`
}

func (m *MCPServer) registerSyncToCalendar() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "sync_to_calendar",
		Description: "Create a Google Calendar event from the date, time and title in a page",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input syncToCalendarInput) (*mcp.CallToolResult, any, error) {
		res, err := m.runner.SyncToCalendar(ctx, input.Page, input.ReminderAt)
		return m.respond("sync_to_calendar", map[string]any{"result": res}, err)
	})
}

func (m *MCPServer) registerAnalyzePage() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "analyze_page",
		Description: "Summarize a page with Gemini into a new <page>_analysis page",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input pageInput) (*mcp.CallToolResult, any, error) {
		res, err := m.runner.Analyze(ctx, input.Page)
		return m.respond("analyze_page", map[string]any{"result": res}, err)
	})
}

func (m *MCPServer) registerAddReminder() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "add_reminder",
		Description: "Ask Gemini for a reminder about a page and add it to Google Calendar",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input pageInput) (*mcp.CallToolResult, any, error) {
		res, err := m.runner.AddReminder(ctx, input.Page)
		return m.respond("add_reminder", map[string]any{"result": res}, err)
	})
}

// ============ Graph Tools ============

var errNoGraph = errors.New("graph database is not configured")

type notesByTagInput struct {
	Tag string `json:"tag" jsonschema:"Tag name with or without the leading #"`
}

func (m *MCPServer) notesByTag(ctx context.Context, input notesByTagInput) (map[string]any, error) {
	if m.db == nil {
		return nil, errNoGraph
	}
	tag := strings.TrimPrefix(strings.TrimSpace(input.Tag), "#")
	if tag == "" {
		return nil, fmt.Errorf("tag is required")
	}
	notes, err := m.db.NotesByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tag":   tag,
		"notes": notes,
	}, nil
}

func (m *MCPServer) registerNotesByTag() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "notes_by_tag",
		Description: "List the pages auto-tagged with a tag",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input notesByTagInput) (*mcp.CallToolResult, any, error) {
		data, err := m.notesByTag(ctx, input)
		return m.respond("notes_by_tag", data, err)
	})
}

type cypherQueryInput struct {
	Query string `json:"query" jsonschema:"Cypher query string"`
}

func (m *MCPServer) registerCypherQuery() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "cypher_query",
		Description: "Execute a Cypher query against the note graph",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input cypherQueryInput) (*mcp.CallToolResult, any, error) {
		if m.db == nil {
			return m.respond("cypher_query", nil, errNoGraph)
		}
		results, err := m.db.Execute(ctx, input.Query, nil)
		return m.respond("cypher_query", map[string]any{"results": results}, err)
	})
}

func (m *MCPServer) registerGetGraphSchema() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "get_graph_schema",
		Description: "Get the note graph schema for constructing Cypher queries",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
		return m.respond("get_graph_schema", map[string]any{"schema": graphSchema}, nil)
	})
}

var graphSchema = map[string]any{
	"nodes": map[string]any{
		"Note": map[string]any{
			"description": "A markdown page in the Silverbullet space",
			"properties":  []string{"path", "name", "title", "folder_path", "updated_at"},
			"example":     "MATCH (n:Note {name: 'journal/2024-03-05'}) RETURN n",
		},
		"Tag": map[string]any{
			"description": "A taxonomy tag",
			"properties":  []string{"name"},
			"example":     "MATCH (t:Tag {name: 'tech-python'}) RETURN t",
		},
		"Event": map[string]any{
			"description": "A calendar event created from a note",
			"properties":  []string{"id", "title", "start", "time_zone"},
			"example":     "MATCH (e:Event) WHERE e.start STARTS WITH '2024-03' RETURN e",
		},
	},
	"relationships": []map[string]any{
		{
			"type":        "TAGGED",
			"from":        "Note",
			"to":          "Tag",
			"properties":  []string{"position"},
			"description": "Note carries the tag; position is its order in the frontmatter",
			"example":     "MATCH (n:Note)-[r:TAGGED]->(t:Tag) RETURN n.name, t.name ORDER BY r.position",
		},
		{
			"type":        "SUBTAG_OF",
			"from":        "Tag",
			"to":          "Tag",
			"properties":  []string{},
			"description": "Subcategory tag points at its parent",
			"example":     "MATCH (c:Tag)-[:SUBTAG_OF]->(p:Tag {name: 'tech'}) RETURN c.name",
		},
		{
			"type":        "SCHEDULES",
			"from":        "Note",
			"to":          "Event",
			"properties":  []string{"synced_at"},
			"description": "Note was synced to the calendar event",
			"example":     "MATCH (n:Note)-[:SCHEDULES]->(e:Event) RETURN n.name, e.start",
		},
	},
}
