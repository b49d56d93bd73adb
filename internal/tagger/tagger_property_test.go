package tagger

import (
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/boblangley/silverbullet-notesync/internal/taxonomy"
)

var vocabulary = []string{
	"tech", "python", "javascript", "cloud", "data", "ai", "openai", "design", "ui",
	"business", "strategy", "ethics", "mind", "logic", "review", "todo", "idea",
	"i", "a", "the", "meeting", "notes", "garden", "Programming", "MARKETING",
}

func genContent(t *rapid.T) string {
	n := rapid.IntRange(0, 20).Draw(t, "wordCount")
	words := make([]string, n)
	for i := range words {
		if rapid.Bool().Draw(t, "fromVocabulary") {
			words[i] = rapid.SampledFrom(vocabulary).Draw(t, "word")
		} else {
			words[i] = rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "randomWord")
		}
	}
	sep := rapid.SampledFrom([]string{" ", "\n", "\t", "  "}).Draw(t, "separator")
	return strings.Join(words, sep)
}

func TestClassifyResultBounds(t *testing.T) {
	position := make(map[string]int)
	for i, name := range taxonomy.Names(taxonomy.Forest()) {
		position[name] = i
	}

	rapid.Check(t, func(t *rapid.T) {
		content := genContent(t)
		tags := Classify(content)

		if len(tags) > taxonomy.MaxTags {
			t.Fatalf("got %d tags, cap is %d", len(tags), taxonomy.MaxTags)
		}

		seen := make(map[string]bool)
		last := -1
		for _, tag := range tags {
			if seen[tag] {
				t.Fatalf("duplicate tag %q in %v", tag, tags)
			}
			seen[tag] = true

			pos, ok := position[tag]
			if !ok {
				t.Fatalf("tag %q is not in the taxonomy", tag)
			}
			if pos <= last {
				t.Fatalf("tags out of taxonomy order: %v", tags)
			}
			last = pos
		}

		for _, tag := range tags {
			if parent, ok := taxonomy.ParentOf(tag); ok && !seen[parent] {
				t.Fatalf("subcategory %q selected without parent %q: %v", tag, parent, tags)
			}
		}
	})
}

func TestClassifyDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := genContent(t)
		first := Classify(content)
		second := Classify(content)
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("Classify(%q) not deterministic: %v vs %v", content, first, second)
		}
	})
}

func TestClassifyIsPrefixOfUncapped(t *testing.T) {
	uncapped, err := NewClassifier(taxonomy.Forest(), 1000)
	if err != nil {
		t.Fatal(err)
	}

	rapid.Check(t, func(t *rapid.T) {
		content := genContent(t)
		all := uncapped.Classify(content)
		capped := Classify(content)

		want := all
		if len(want) > taxonomy.MaxTags {
			want = want[:taxonomy.MaxTags]
		}
		if len(capped) != len(want) {
			t.Fatalf("capped %v is not the first %d of %v", capped, taxonomy.MaxTags, all)
		}
		for i := range want {
			if capped[i] != want[i] {
				t.Fatalf("capped %v is not a prefix of %v", capped, all)
			}
		}
	})
}
