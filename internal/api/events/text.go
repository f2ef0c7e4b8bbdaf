package events

import (
	"html"
	"regexp"
	"strings"

	"github.com/SuperSchedules/superschedules/internal/types"
)

var (
	htmlTag    = regexp.MustCompile(`<[^>]+>`)
	spaceRunes = regexp.MustCompile(`\s+`)
)

// CleanHTML unescapes entities, strips tags and collapses whitespace.
func CleanHTML(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = htmlTag.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, `\n`, " ")
	s = spaceRunes.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SearchText is the text an event is embedded from: title, description,
// location, tags and audience, plus weekday, clock time and month so queries
// like "saturday morning" or "in december" can match.
func SearchText(e types.EventCandidate) string {
	parts := []string{
		CleanHTML(e.Title),
		CleanHTML(e.Description),
		CleanHTML(e.LocationText),
	}
	if len(e.Tags) > 0 {
		parts = append(parts, strings.Join(e.Tags, " "))
	}
	if len(e.Audience) > 0 {
		parts = append(parts, strings.Join(e.Audience, " "))
	}
	if e.StartTime != nil {
		parts = append(parts,
			e.StartTime.Format("Monday 03:04 PM"),
			e.StartTime.Format("January"),
		)
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
