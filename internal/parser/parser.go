// Package parser reads the markdown pages of a SilverBullet space.
package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/boblangley/silverbullet-notesync/internal/frontmatter"
	"github.com/boblangley/silverbullet-notesync/internal/types"
)

// ErrOutsideSpace is returned for page names that resolve outside the space.
var ErrOutsideSpace = errors.New("page is outside the space")

// SpaceParser parses SilverBullet markdown files.
type SpaceParser struct {
	md        goldmark.Markdown
	spaceRoot string
}

// NewSpaceParser creates a new parser rooted at spaceRoot.
func NewSpaceParser(spaceRoot string) *SpaceParser {
	return &SpaceParser{
		md:        goldmark.New(),
		spaceRoot: spaceRoot,
	}
}

// Root returns the space directory.
func (p *SpaceParser) Root() string {
	return p.spaceRoot
}

// ParseSpace parses all markdown pages under the space root.
func (p *SpaceParser) ParseSpace() ([]types.Note, error) {
	var notes []types.Note

	err := p.WalkPages(func(path string) error {
		note, err := p.ParseFile(path)
		if err != nil {
			return nil // Skip files we can't read
		}
		notes = append(notes, note)
		return nil
	})

	return notes, err
}

// WalkPages calls fn with the absolute path of every markdown page.
func (p *SpaceParser) WalkPages(fn func(path string) error) error {
	return filepath.WalkDir(p.spaceRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != p.spaceRoot && ShouldSkipDirectory(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if !IsPage(path) {
			return nil
		}
		return fn(path)
	})
}

// ParseFile parses a single markdown file.
func (p *SpaceParser) ParseFile(filePath string) (types.Note, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return types.Note{}, fmt.Errorf("read page: %w", err)
	}
	return p.Parse(filePath, string(content)), nil
}

// Parse builds a note from already-read content.
func (p *SpaceParser) Parse(filePath, content string) types.Note {
	note := types.Note{
		Path:        filePath,
		Name:        strings.TrimSuffix(filepath.Base(filePath), ".md"),
		Content:     content,
		Frontmatter: frontmatter.Extract(content),
		Tags:        frontmatter.DocumentTags(content),
	}

	if p.spaceRoot != "" {
		if relPath, err := filepath.Rel(p.spaceRoot, filePath); err == nil && !strings.HasPrefix(relPath, "..") {
			note.Name = filepath.ToSlash(strings.TrimSuffix(relPath, ".md"))
			if dir := filepath.Dir(relPath); dir != "." {
				note.FolderPath = filepath.ToSlash(dir)
			}
		}
	}

	note.Title = p.firstHeading(frontmatter.Strip(content))
	return note
}

// firstHeading returns the text of the first level-one heading.
func (p *SpaceParser) firstHeading(content string) string {
	reader := text.NewReader([]byte(content))
	doc := p.md.Parser().Parse(reader)
	source := reader.Source()

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level != 1 {
			return ast.WalkContinue, nil
		}

		var sb strings.Builder
		for i := 0; i < heading.Lines().Len(); i++ {
			line := heading.Lines().At(i)
			sb.Write(line.Value(source))
		}
		title = strings.TrimSpace(sb.String())
		return ast.WalkStop, nil
	})

	return title
}

// PagePath resolves a page name ("journal/2024-03-05", with or without
// ".md") or an absolute file path to a file inside the space.
func (p *SpaceParser) PagePath(page string) (string, error) {
	if strings.TrimSpace(page) == "" {
		return "", fmt.Errorf("empty page name")
	}

	root, err := filepath.Abs(p.spaceRoot)
	if err != nil {
		return "", fmt.Errorf("resolve space root: %w", err)
	}

	if !strings.HasSuffix(page, ".md") {
		page += ".md"
	}

	var path string
	if filepath.IsAbs(page) {
		path = filepath.Clean(page)
	} else {
		path = filepath.Join(root, filepath.FromSlash(page))
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideSpace, page)
	}
	return path, nil
}

// IsPage reports whether path is a markdown page that should be processed.
func IsPage(path string) bool {
	return strings.HasSuffix(path, ".md") && !ShouldSkipFile(path)
}

// ShouldSkipFile reports files that are never tagged or synced.
func ShouldSkipFile(path string) bool {
	base := filepath.Base(path)

	// Editor swap and conflict copies
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".conflicted.md") {
		return true
	}

	return false
}

// ShouldSkipDirectory reports directories that are not part of the space.
func ShouldSkipDirectory(path string) bool {
	base := filepath.Base(path)

	// Hidden directories, including the notesync state directory
	if strings.HasPrefix(base, ".") {
		return true
	}

	// Plugin bundles
	if base == "_plug" {
		return true
	}

	return false
}
