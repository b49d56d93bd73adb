// Package taxonomy holds the fixed tag hierarchy used for classification.
package taxonomy

import (
	"fmt"
	"regexp"

	"github.com/boblangley/silverbullet-notesync/internal/types"
)

// MaxTags caps the number of tags selected for a single note.
const MaxTags = 7

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// defaultForest is never mutated after package init.
var defaultForest = []types.TagCategory{
	{Name: "concept"},
	{Name: "tutorial"},
	{Name: "project"},
	{Name: "reference"},
	{Name: "idea"},
	{Name: "remind", Subcategories: leaves("remind", "product", "clients", "internal", "strategy")},
	{Name: "ai", Subcategories: leaves("ai", "openai", "anthropic", "google", "tools", "ethics", "research")},
	{Name: "tech", Subcategories: leaves("tech", "programming", "python", "javascript", "data", "cloud")},
	{Name: "business", Subcategories: leaves("business", "strategy", "management", "ethics", "leadership")},
	{Name: "marketing", Subcategories: leaves("marketing", "digital", "content", "analytics", "strategy")},
	{Name: "analytics", Subcategories: leaves("analytics", "data", "metrics", "reporting", "tools")},
	{Name: "design", Subcategories: leaves("design", "ui", "ux", "graphic", "product", "thinking")},
	{Name: "philosophy", Subcategories: leaves("philosophy", "ethics", "logic", "mind")},
	{Name: "todo"},
	{Name: "inprogress"},
	{Name: "completed"},
	{Name: "review"},
}

// parents maps every subcategory name of the default forest to its parent.
var parents = indexParents(defaultForest)

func leaves(parent string, children ...string) []types.TagCategory {
	out := make([]types.TagCategory, len(children))
	for i, c := range children {
		out[i] = types.TagCategory{Name: parent + "-" + c}
	}
	return out
}

func indexParents(forest []types.TagCategory) map[string]string {
	m := make(map[string]string)
	for _, c := range forest {
		for _, sub := range c.Subcategories {
			m[sub.Name] = c.Name
		}
	}
	return m
}

// Default returns a copy of the built-in taxonomy.
func Default() []types.TagCategory {
	return Clone(defaultForest)
}

// Forest returns the built-in taxonomy without copying. Callers must not modify it.
func Forest() []types.TagCategory {
	return defaultForest
}

// Clone deep-copies a forest.
func Clone(forest []types.TagCategory) []types.TagCategory {
	out := make([]types.TagCategory, len(forest))
	for i, c := range forest {
		out[i] = types.TagCategory{Name: c.Name}
		if len(c.Subcategories) > 0 {
			out[i].Subcategories = Clone(c.Subcategories)
		}
	}
	return out
}

// ParentOf returns the parent category of a subcategory in the default forest.
func ParentOf(name string) (string, bool) {
	p, ok := parents[name]
	return p, ok
}

// Names returns every tag name of a forest in scan order.
func Names(forest []types.TagCategory) []string {
	var names []string
	for _, c := range forest {
		names = append(names, c.Name)
		for _, sub := range c.Subcategories {
			names = append(names, sub.Name)
		}
	}
	return names
}

// Validate checks that names are unique, well-formed, and at most two levels deep.
func Validate(forest []types.TagCategory) error {
	seen := make(map[string]struct{})
	check := func(name string) error {
		if !namePattern.MatchString(name) {
			return fmt.Errorf("invalid tag name %q", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate tag name %q", name)
		}
		seen[name] = struct{}{}
		return nil
	}

	for _, c := range forest {
		if err := check(c.Name); err != nil {
			return err
		}
		for _, sub := range c.Subcategories {
			if err := check(sub.Name); err != nil {
				return err
			}
			if len(sub.Subcategories) > 0 {
				return fmt.Errorf("tag %q nests deeper than two levels", sub.Name)
			}
		}
	}
	return nil
}
