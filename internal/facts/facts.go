// Package facts finds the date, time and title of a scheduled item in note text.
package facts

import (
	"errors"
	"regexp"

	"github.com/boblangley/silverbullet-notesync/internal/types"
)

// ErrExtractionIncomplete is returned when the date, time or title is missing.
var ErrExtractionIncomplete = errors.New("schedule date, time, or title not found")

var (
	datePattern  = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)
	timePattern  = regexp.MustCompile(`\d{1,2}:\d{2}`)
	titlePattern = regexp.MustCompile(`(?m)^# ([^\r\n]+)`)
)

// ExtractFacts scans raw note content for the first date literal
// (2024年3月5日), the first time literal (9:30 or 09:30) and the first
// "# " heading. All three must be present.
func ExtractFacts(content string) (types.ExtractedFact, error) {
	date := datePattern.FindStringSubmatch(content)
	clock := timePattern.FindString(content)
	title := titlePattern.FindStringSubmatch(content)

	if date == nil || clock == "" || title == nil {
		return types.ExtractedFact{}, ErrExtractionIncomplete
	}

	return types.ExtractedFact{
		Date:  date[1] + "-" + pad2(date[2]) + "-" + pad2(date[3]),
		Time:  clock,
		Title: title[1],
	}, nil
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
