package ranking

import (
	"math"
	"strings"
	"time"
	"unicode"
)

const (
	// locationHalfMiles is the distance at which location_match drops to 0.5.
	locationHalfMiles = 5.0
	// timeHalfDays is the lead time at which time_relevance drops to 0.5.
	timeHalfDays = 7.0
	// categorySaturation is the keyword overlap that earns a full category score.
	categorySaturation = 3.0
)

func clip01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// SemanticScore clips a raw similarity into [0,1].
func SemanticScore(similarity float64) float64 {
	return clip01(similarity)
}

// LocationScore decays with distance. Without a location context or a known
// distance it returns neutral, never zero.
func LocationScore(distanceMiles *float64, hasLocation bool, neutral float64) float64 {
	if !hasLocation || distanceMiles == nil {
		return neutral
	}
	d := math.Max(0, *distanceMiles)
	return 1 / (1 + d/locationHalfMiles)
}

// TimeScore decays with the days until start. It also returns the day count
// when the start time is known, negative for past events.
func TimeScore(start *time.Time, now time.Time) (float64, *float64) {
	if start == nil {
		return 0, nil
	}
	days := start.Sub(now).Hours() / 24
	if days < 0 {
		return 0, &days
	}
	return 1 / (1 + days/timeHalfDays), &days
}

// CategoryScore counts query keywords present in the event's tags or
// audience and saturates at three.
func CategoryScore(keywords []string, tags, audience []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	terms := make(map[string]struct{})
	for _, group := range [][]string{tags, audience} {
		for _, label := range group {
			for _, w := range tokenize(label) {
				terms[w] = struct{}{}
				terms[singular(w)] = struct{}{}
			}
		}
	}
	if len(terms) == 0 {
		return 0
	}
	overlap := 0
	for _, k := range keywords {
		if _, ok := terms[k]; ok {
			overlap++
			continue
		}
		if _, ok := terms[singular(k)]; ok {
			overlap++
		}
	}
	return math.Min(1, float64(overlap)/categorySaturation)
}

// PopularityScore clips a source quality signal; absent values are neutral.
func PopularityScore(popularity *float64, neutral float64) float64 {
	if popularity == nil {
		return neutral
	}
	return clip01(*popularity)
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "near": {}, "around": {}, "this": {},
	"that": {}, "are": {}, "any": {}, "what": {}, "some": {}, "events": {}, "event": {},
	"things": {}, "from": {}, "into": {}, "there": {}, "find": {}, "show": {},
	"weekend": {}, "today": {}, "tonight": {}, "tomorrow": {}, "week": {},
}

// QueryKeywords extracts the distinct lower-cased content words of a query,
// in order of first appearance.
func QueryKeywords(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range tokenize(query) {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// singular strips a plain English plural so "kids" matches "kid".
func singular(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}
