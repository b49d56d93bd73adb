package frontmatter

import (
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func genTagString(t *rapid.T) string {
	n := rapid.IntRange(0, 7).Draw(t, "tagCount")
	tags := make([]string, n)
	for i := range tags {
		tags[i] = "#" + rapid.StringMatching(`[a-z]{1,6}(-[a-z]{1,6})?`).Draw(t, "tag")
	}
	return strings.Join(tags, " ")
}

func genHeaderFields(t *rapid.T) []string {
	n := rapid.IntRange(0, 5).Draw(t, "fieldCount")
	fields := make([]string, n)
	for i := range fields {
		key := rapid.StringMatching(`[a-su-z][a-z]{0,7}`).Draw(t, "key")
		value := rapid.StringMatching(`[a-zA-Z0-9 ]{0,12}`).Draw(t, "value")
		fields[i] = fmt.Sprintf("%s: %s", key, value)
	}
	return fields
}

func genDocument(t *rapid.T) string {
	body := rapid.StringMatching(`(# [A-Za-z ]{1,10}\n)?([a-z:#\- ]{0,20}\n){0,4}`).Draw(t, "body")
	if !rapid.Bool().Draw(t, "hasHeader") {
		return body
	}

	fields := genHeaderFields(t)
	if rapid.Bool().Draw(t, "hasTags") {
		at := rapid.IntRange(0, len(fields)).Draw(t, "tagsAt")
		var tagsLine string
		if rapid.Bool().Draw(t, "listTags") {
			tagsLine = "tags:\n  - one\n  - two"
		} else {
			tagsLine = "tags: " + genTagString(t)
		}
		fields = append(fields[:at], append([]string{tagsLine}, fields[at:]...)...)
	}
	return "---\n" + strings.Join(fields, "\n") + "\n---\n" + body
}

func TestMergeTagsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := genDocument(t)
		tags := genTagString(t)

		once := MergeTags(doc, tags)
		twice := MergeTags(once, tags)
		if once != twice {
			t.Fatalf("not idempotent for %q:\n once: %q\ntwice: %q", doc, once, twice)
		}
	})
}

func TestMergeTagsIdempotentArbitraryInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := rapid.String().Draw(t, "doc")
		tags := rapid.String().Draw(t, "tags")

		once := MergeTags(doc, tags)
		if twice := MergeTags(once, tags); once != twice {
			t.Fatalf("not idempotent for %q / %q", doc, tags)
		}
	})
}

func TestMergeTagsPreservesOtherFields(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fields := genHeaderFields(t)
		body := rapid.StringMatching(`[a-z \n]{0,40}`).Draw(t, "body")
		tags := genTagString(t)

		doc := "---\n" + strings.Join(fields, "\n") + "\n---\n" + body
		if len(fields) == 0 {
			doc = "---\n---\n" + body
		}
		got := MergeTags(doc, tags)

		want := "---\n" + strings.Join(append(fields, "tags: "+tags), "\n") + "\n---\n" + body
		if got != want {
			t.Fatalf("MergeTags(%q)\n got: %q\nwant: %q", doc, got, want)
		}
	})
}

func TestMergeTagsSynthesizesHeader(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := rapid.StringMatching(`[^-][a-z#\n ]{0,40}`).Draw(t, "doc")
		tags := genTagString(t)

		got := MergeTags(doc, tags)
		want := "---\ntags: " + tags + "\n---\n\n" + doc
		if got != want {
			t.Fatalf("MergeTags(%q)\n got: %q\nwant: %q", doc, got, want)
		}
	})
}
