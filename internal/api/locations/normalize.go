package locations

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// stateAbbreviations maps lower-cased US state names to postal codes.
var stateAbbreviations = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "florida": "FL", "georgia": "GA",
	"hawaii": "HI", "idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV", "new hampshire": "NH", "new jersey": "NJ",
	"new mexico": "NM", "new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
	"district of columbia": "DC",
}

var (
	stateCodes map[string]struct{}
	// stateNamesLongestFirst makes "west virginia" win over "virginia".
	stateNamesLongestFirst []string

	commaStatePattern = regexp.MustCompile(`^(.+?),\s*([A-Za-z]{2})$`)
	spaceStatePattern = regexp.MustCompile(`^(.+?)\s+([A-Z]{2})$`)
	placePrefix       = regexp.MustCompile(`^(city|town|village|borough|township)\s+of\s+`)
	queryPrefix       = regexp.MustCompile(`^(in|at|near|around|events\s+(?:in|at|near|around))\s+`)
	whitespace        = regexp.MustCompile(`\s+`)
)

func init() {
	stateCodes = make(map[string]struct{}, len(stateAbbreviations))
	for name, code := range stateAbbreviations {
		stateCodes[code] = struct{}{}
		stateNamesLongestFirst = append(stateNamesLongestFirst, name)
	}
	sort.Slice(stateNamesLongestFirst, func(i, j int) bool {
		a, b := stateNamesLongestFirst[i], stateNamesLongestFirst[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
}

// IsStateCode reports whether code is a known US state or DC postal code.
func IsStateCode(code string) bool {
	_, ok := stateCodes[strings.ToUpper(code)]
	return ok
}

// NormalizeQuery splits a raw location query into a normalized place name and
// an optional state code.
//
//	"Newton, MA"            -> ("newton", "MA")
//	"Newton Massachusetts"  -> ("newton", "MA")
//	"events in Newton"      -> ("newton", "")
//	"City of Springfield"   -> ("springfield", "")
func NormalizeQuery(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	city, state := extractState(text)
	return NormalizeName(city), state
}

func extractState(text string) (string, string) {
	if m := commaStatePattern.FindStringSubmatch(text); m != nil {
		code := strings.ToUpper(m[2])
		if IsStateCode(code) {
			return strings.TrimSpace(m[1]), code
		}
	}

	if m := spaceStatePattern.FindStringSubmatch(text); m != nil {
		if IsStateCode(m[2]) {
			return strings.TrimSpace(m[1]), m[2]
		}
	}

	lower := strings.ToLower(text)
	for _, name := range stateNamesLongestFirst {
		if !strings.HasSuffix(lower, name) {
			continue
		}
		rest := text[:len(text)-len(name)]
		// Require a separator so "Germaine" is not read as "Ger" + Maine.
		if rest == "" || !strings.ContainsAny(rest[len(rest)-1:], " ,") {
			continue
		}
		city := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), ","))
		if city == "" {
			continue
		}
		return city, stateAbbreviations[name]
	}

	return text, ""
}

// NormalizeName lower-cases a place name and strips the decorations users and
// datasets add to it, so "City of Winston-Salem." and "winston-salem" compare equal.
func NormalizeName(name string) string {
	result := strings.ToLower(strings.TrimSpace(name))
	if result == "" {
		return ""
	}
	result = placePrefix.ReplaceAllString(result, "")
	result = queryPrefix.ReplaceAllString(result, "")

	result = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '-' || r == '_' {
			return r
		}
		return -1
	}, result)

	result = whitespace.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}
