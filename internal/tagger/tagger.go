// Package tagger selects taxonomy tags for note content.
package tagger

import (
	"fmt"
	"strings"

	"github.com/boblangley/silverbullet-notesync/internal/taxonomy"
	"github.com/boblangley/silverbullet-notesync/internal/types"
)

// Classifier walks a taxonomy and keeps at most MaxTags matches.
type Classifier struct {
	forest  []types.TagCategory
	maxTags int
}

var defaultClassifier = &Classifier{
	forest:  taxonomy.Forest(),
	maxTags: taxonomy.MaxTags,
}

// NewClassifier validates forest and returns a classifier over a private copy of it.
// A maxTags of zero or less means taxonomy.MaxTags.
func NewClassifier(forest []types.TagCategory, maxTags int) (*Classifier, error) {
	if err := taxonomy.Validate(forest); err != nil {
		return nil, fmt.Errorf("validate taxonomy: %w", err)
	}
	if maxTags <= 0 {
		maxTags = taxonomy.MaxTags
	}
	return &Classifier{
		forest:  taxonomy.Clone(forest),
		maxTags: maxTags,
	}, nil
}

// Classify selects tags for content using the built-in taxonomy.
func Classify(content string) []string {
	return defaultClassifier.Classify(content)
}

// Classify returns matching tag names in taxonomy order.
// Subcategories are only considered when their parent matched.
func (c *Classifier) Classify(content string) []string {
	contentLower := strings.ToLower(content)

	var tags []string
	for _, category := range c.forest {
		if !IsRelevant(contentLower, category.Name) {
			continue
		}
		tags = append(tags, category.Name)

		for _, sub := range category.Subcategories {
			if IsRelevant(contentLower, sub.Name) {
				tags = append(tags, sub.Name)
			}
		}
	}

	if len(tags) > c.maxTags {
		tags = tags[:c.maxTags]
	}
	return tags
}

// FormatTagsForFrontmatter renders tags as "#a #b" in input order.
func FormatTagsForFrontmatter(tags []string) string {
	formatted := make([]string, len(tags))
	for i, tag := range tags {
		formatted[i] = "#" + tag
	}
	return strings.Join(formatted, " ")
}
