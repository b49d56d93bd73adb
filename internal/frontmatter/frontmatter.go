// Package frontmatter reads and rewrites the YAML header block of a note.
package frontmatter

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// Opening marker, optional body, closing marker. The lazy "??" makes an
	// empty header ("---\n---") win over a longer one further down.
	headerPattern = regexp.MustCompile(`(?s)\A(---[ \t]*\r?\n)(?:(.*?)\n)??(---[ \t]*(?:\r?\n|\z))`)

	// A column-0 tags key plus any indented or "- " continuation lines.
	tagsLinePattern = regexp.MustCompile(`(?m)^tags:[^\r\n]*(?:\r?\n(?:[ \t]+|-)[^\r\n]*)*`)

	lineBreaks = regexp.MustCompile(`\r?\n|\r`)
)

type header struct {
	open    string
	body    string
	hasBody bool
	close   string
	rest    string
	crlf    bool
}

// split locates the leading header block. ok is false when the document
// does not start with a well-formed one.
func split(document string) (h header, ok bool) {
	m := headerPattern.FindStringSubmatchIndex(document)
	if m == nil {
		return header{}, false
	}

	h.open = document[m[2]:m[3]]
	if m[4] >= 0 {
		h.body = document[m[4]:m[5]]
		h.hasBody = true
	}
	h.close = document[m[6]:m[7]]
	h.rest = document[m[1]:]
	h.crlf = strings.HasSuffix(h.open, "\r\n")
	if h.crlf {
		h.body = strings.TrimSuffix(h.body, "\r")
	}
	return h, true
}

func (h header) String() string {
	if !h.hasBody {
		return h.open + h.close + h.rest
	}
	return h.open + h.body + h.eol() + h.close + h.rest
}

func (h header) eol() string {
	if h.crlf {
		return "\r\n"
	}
	return "\n"
}

// MergeTags writes "tags: <formattedTags>" into the document header.
//
// An existing tags entry is replaced in place and every other header line is
// left alone; without one, the line is appended to the header. A document
// with no header gets a new one followed by a blank line. Applying the same
// value twice gives the same document as applying it once.
func MergeTags(document, formattedTags string) string {
	tagsLine := "tags: " + lineBreaks.ReplaceAllString(formattedTags, " ")

	h, ok := split(document)
	if !ok {
		return "---\n" + tagsLine + "\n---\n\n" + document
	}

	if loc := tagsLinePattern.FindStringIndex(h.body); loc != nil {
		h.body = h.body[:loc[0]] + tagsLine + h.body[loc[1]:]
	} else if h.hasBody {
		h.body = h.body + h.eol() + tagsLine
	} else {
		h.body = tagsLine
	}
	h.hasBody = true
	return h.String()
}

// Extract decodes the header block. It returns nil when there is no header
// or it is not a YAML mapping.
func Extract(document string) map[string]any {
	h, ok := split(document)
	if !ok || strings.TrimSpace(h.body) == "" {
		return nil
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(h.body), &fm); err != nil {
		return nil
	}
	return fm
}

// Strip returns the document without its header block.
func Strip(document string) string {
	h, ok := split(document)
	if !ok {
		return document
	}
	return h.rest
}

// DocumentTags returns the tags of a document's header. "tags: #a #b" decodes
// to null in YAML since '#' starts a comment, so the raw line is used when the
// decoded value is empty.
func DocumentTags(document string) []string {
	if tags := Tags(Extract(document)); len(tags) > 0 {
		return tags
	}

	h, ok := split(document)
	if !ok {
		return nil
	}
	loc := tagsLinePattern.FindStringIndex(h.body)
	if loc == nil {
		return nil
	}
	line := strings.TrimPrefix(h.body[loc[0]:loc[1]], "tags:")
	return Tags(map[string]any{"tags": line})
}

// Tags returns the tags listed in decoded frontmatter. A string value is
// split on whitespace and leading '#' markers are dropped, so both
// "tags: #a #b" and a YAML list are understood.
func Tags(fm map[string]any) []string {
	if fm == nil {
		return nil
	}

	raw, ok := fm["tags"]
	if !ok {
		return nil
	}

	var tags []string
	add := func(s string) {
		for _, f := range strings.Fields(s) {
			if t := strings.TrimLeft(f, "#"); t != "" {
				tags = append(tags, t)
			}
		}
	}

	switch v := raw.(type) {
	case string:
		add(v)
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	}
	return tags
}
