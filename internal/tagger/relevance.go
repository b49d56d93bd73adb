package tagger

import "strings"

// IsRelevant reports whether every hyphen-separated word of tagName overlaps
// some whitespace-separated word of contentLower, where overlap means either
// word contains the other. contentLower must already be lower-cased.
//
// Single-letter content words such as "i" match any tag word containing that
// letter. That looseness is relied on by existing notes and is kept as is.
func IsRelevant(contentLower, tagName string) bool {
	tagWords := strings.Split(tagName, "-")
	contentWords := strings.Fields(contentLower)
	if len(contentWords) == 0 {
		return false
	}

	for _, tagWord := range tagWords {
		if !overlapsAny(tagWord, contentWords) {
			return false
		}
	}
	return true
}

func overlapsAny(tagWord string, contentWords []string) bool {
	for _, w := range contentWords {
		if strings.Contains(w, tagWord) || strings.Contains(tagWord, w) {
			return true
		}
	}
	return false
}
