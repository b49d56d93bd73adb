package facts

import (
	"errors"
	"testing"

	"github.com/boblangley/silverbullet-notesync/internal/types"
)

func TestExtractFacts(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    types.ExtractedFact
	}{
		{
			name:    "meeting note",
			content: "# Meeting\n\n2024年3月5日 14:30 から会議室で",
			want:    types.ExtractedFact{Date: "2024-03-05", Time: "14:30", Title: "Meeting"},
		},
		{
			name:    "two digit month and day",
			content: "# 定例会\n日時: 2025年12月24日 9:05",
			want:    types.ExtractedFact{Date: "2025-12-24", Time: "9:05", Title: "定例会"},
		},
		{
			name:    "first matches win",
			content: "intro\n# First\n# Second\n2024年1月2日 10:00 and 2024年5月6日 11:00",
			want:    types.ExtractedFact{Date: "2024-01-02", Time: "10:00", Title: "First"},
		},
		{
			name:    "title is not lower-cased or trimmed",
			content: "---\ntags: #x\n---\n# Quarterly Review  \n2024年4月1日 8:00",
			want:    types.ExtractedFact{Date: "2024-04-01", Time: "8:00", Title: "Quarterly Review  "},
		},
		{
			name:    "crlf line endings",
			content: "# Meeting\r\n2024年3月5日 14:30\r\n",
			want:    types.ExtractedFact{Date: "2024-03-05", Time: "14:30", Title: "Meeting"},
		},
		{
			name:    "time inside a longer number run",
			content: "# T\n2024年4月1日 at 123:45",
			want:    types.ExtractedFact{Date: "2024-04-01", Time: "23:45", Title: "T"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractFacts(tc.content)
			if err != nil {
				t.Fatalf("ExtractFacts() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("ExtractFacts() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestExtractFactsMissingField(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no date", "# Meeting\n14:30"},
		{"no time", "# Meeting\n2024年3月5日"},
		{"no title", "Meeting\n2024年3月5日 14:30"},
		{"level two heading only", "## Meeting\n2024年3月5日 14:30"},
		{"heading without space", "#Meeting\n2024年3月5日 14:30"},
		{"empty crlf heading", "# \r\n2024年3月5日 14:30"},
		{"heading not at line start", "text # Meeting\n2024年3月5日 14:30"},
		{"western date", "# Meeting\n2024-03-05 14:30"},
		{"empty", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractFacts(tc.content)
			if !errors.Is(err, ErrExtractionIncomplete) {
				t.Fatalf("expected ErrExtractionIncomplete, got %v", err)
			}
			if got != (types.ExtractedFact{}) {
				t.Errorf("expected zero value on failure, got %+v", got)
			}
		})
	}
}
