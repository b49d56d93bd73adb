package db

import (
	"context"
	"fmt"
	"time"

	"github.com/boblangley/silverbullet-notesync/internal/types"
)

// NoteRef identifies a note stored in the graph.
type NoteRef struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

// EventRecord is an event scheduled from a note.
type EventRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Start    string `json:"start"`
	TimeZone string `json:"time_zone"`
	SyncedAt string `json:"synced_at"`
}

// SyncTaxonomy stores every tag of forest with SUBTAG_OF edges to parents.
func (g *GraphDB) SyncTaxonomy(ctx context.Context, forest []types.TagCategory) error {
	for _, parent := range forest {
		if err := g.ExecuteWrite(ctx, `MERGE (t:Tag {name: $name})`, map[string]any{"name": parent.Name}); err != nil {
			return fmt.Errorf("create tag %s: %w", parent.Name, err)
		}
		for _, child := range parent.Subcategories {
			if err := g.ExecuteWrite(ctx, `
				MERGE (c:Tag {name: $child})
				WITH c
				MATCH (p:Tag {name: $parent})
				MERGE (c)-[:SUBTAG_OF]->(p)
			`, map[string]any{"child": child.Name, "parent": parent.Name}); err != nil {
				return fmt.Errorf("create tag %s: %w", child.Name, err)
			}
		}
	}
	return nil
}

// upsertNote creates or refreshes the Note node for note.
func (g *GraphDB) upsertNote(ctx context.Context, note types.Note) error {
	return g.ExecuteWrite(ctx, `
		MERGE (n:Note {path: $path})
		SET n.name = $name,
		    n.title = $title,
		    n.folder_path = $folder_path,
		    n.updated_at = $updated_at
	`, map[string]any{
		"path":        note.Path,
		"name":        note.Name,
		"title":       note.Title,
		"folder_path": note.FolderPath,
		"updated_at":  time.Now().UTC().Format(time.RFC3339),
	})
}

// RecordNoteTags replaces the tag edges of note with tags, keeping order.
func (g *GraphDB) RecordNoteTags(ctx context.Context, note types.Note, tags []string) error {
	if err := g.upsertNote(ctx, note); err != nil {
		return fmt.Errorf("create note %s: %w", note.Path, err)
	}

	if err := g.ExecuteWrite(ctx, `
		MATCH (n:Note {path: $path})-[r:TAGGED]->()
		DELETE r
	`, map[string]any{"path": note.Path}); err != nil {
		return fmt.Errorf("clear tags of %s: %w", note.Path, err)
	}

	for i, tag := range tags {
		if err := g.ExecuteWrite(ctx, `
			MATCH (n:Note {path: $path})
			MERGE (t:Tag {name: $tag})
			MERGE (n)-[:TAGGED {position: $position}]->(t)
		`, map[string]any{
			"path":     note.Path,
			"tag":      tag,
			"position": int64(i),
		}); err != nil {
			return fmt.Errorf("tag %s with %s: %w", note.Path, tag, err)
		}
	}

	return nil
}

// TagsForNote returns the recorded tags of a note in the order assigned.
func (g *GraphDB) TagsForNote(ctx context.Context, path string) ([]string, error) {
	results, err := g.Execute(ctx, `
		MATCH (n:Note {path: $path})-[r:TAGGED]->(t:Tag)
		RETURN t.name AS name
		ORDER BY r.position
	`, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(results))
	for _, r := range results {
		tags = append(tags, stringValue(r["name"]))
	}
	return tags, nil
}

// NotesByTag returns the notes tagged with tag, sorted by name.
func (g *GraphDB) NotesByTag(ctx context.Context, tag string) ([]NoteRef, error) {
	results, err := g.Execute(ctx, `
		MATCH (n:Note)-[:TAGGED]->(t:Tag {name: $tag})
		RETURN n.path AS path, n.name AS name, n.title AS title
		ORDER BY n.name
	`, map[string]any{"tag": tag})
	if err != nil {
		return nil, err
	}

	notes := make([]NoteRef, 0, len(results))
	for _, r := range results {
		notes = append(notes, NoteRef{
			Path:  stringValue(r["path"]),
			Name:  stringValue(r["name"]),
			Title: stringValue(r["title"]),
		})
	}
	return notes, nil
}

// RecordEvent stores ev under id and links it to the note it came from.
func (g *GraphDB) RecordEvent(ctx context.Context, note types.Note, id string, ev types.CalendarEvent) error {
	if err := g.upsertNote(ctx, note); err != nil {
		return fmt.Errorf("create note %s: %w", note.Path, err)
	}

	if err := g.ExecuteWrite(ctx, `
		MERGE (e:Event {id: $id})
		SET e.title = $title, e.start = $start, e.time_zone = $time_zone
	`, map[string]any{
		"id":        id,
		"title":     ev.Summary,
		"start":     ev.Start.DateTime,
		"time_zone": ev.Start.TimeZone,
	}); err != nil {
		return fmt.Errorf("create event %s: %w", id, err)
	}

	if err := g.ExecuteWrite(ctx, `
		MATCH (n:Note {path: $path})
		MATCH (e:Event {id: $id})
		MERGE (n)-[s:SCHEDULES]->(e)
		SET s.synced_at = $synced_at
	`, map[string]any{
		"path":      note.Path,
		"id":        id,
		"synced_at": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("link event %s: %w", id, err)
	}

	return nil
}

// EventsForNote returns the events scheduled from a note, by start time.
func (g *GraphDB) EventsForNote(ctx context.Context, path string) ([]EventRecord, error) {
	results, err := g.Execute(ctx, `
		MATCH (n:Note {path: $path})-[s:SCHEDULES]->(e:Event)
		RETURN e.id AS id, e.title AS title, e.start AS start, e.time_zone AS time_zone, s.synced_at AS synced_at
		ORDER BY e.start
	`, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}

	events := make([]EventRecord, 0, len(results))
	for _, r := range results {
		events = append(events, EventRecord{
			ID:       stringValue(r["id"]),
			Title:    stringValue(r["title"]),
			Start:    stringValue(r["start"]),
			TimeZone: stringValue(r["time_zone"]),
			SyncedAt: stringValue(r["synced_at"]),
		})
	}
	return events, nil
}

// DeleteNote removes a note and its edges. Events stay, since they still
// exist on the calendar.
func (g *GraphDB) DeleteNote(ctx context.Context, path string) error {
	if err := g.ExecuteWrite(ctx, `
		MATCH (n:Note {path: $path})
		DETACH DELETE n
	`, map[string]any{"path": path}); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
