package types

import "github.com/google/uuid"

// Location is a gazetteer entry. Locations are loaded once and never mutated
// while queries are being served.
type Location struct {
	ID             uuid.UUID `json:"id"`
	GeoID          string    `json:"geoid,omitempty"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"normalized_name"`
	State          string    `json:"state"`
	CountryCode    string    `json:"country_code"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Population     *int64    `json:"population,omitempty"`
	Source         string    `json:"source,omitempty"`
}

// PopulationOrZero treats an unknown population as zero for ordering purposes.
func (l Location) PopulationOrZero() int64 {
	if l.Population == nil {
		return 0
	}
	return *l.Population
}

// Label renders "Name, ST, United States" the way the UI displays it.
func (l Location) Label() string {
	country := l.CountryCode
	switch country {
	case "US", "":
		country = "United States"
	case "CA":
		country = "Canada"
	}
	if l.State == "" {
		return l.Name + ", " + country
	}
	return l.Name + ", " + l.State + ", " + country
}

// ResolutionMethod records which rule selected a location.
type ResolutionMethod string

const (
	ResolutionByID            ResolutionMethod = "id"
	ResolutionExact           ResolutionMethod = "exact"
	ResolutionUnique          ResolutionMethod = "unique"
	ResolutionPreferredRegion ResolutionMethod = "preferred_region"
	ResolutionPopulation      ResolutionMethod = "population"
	ResolutionCoordinates     ResolutionMethod = "coordinates"
	ResolutionNotFound        ResolutionMethod = "not_found"
)

// ResolvedLocation is the outcome of resolving free text to a Location.
// A nil Location means nothing matched; that is a normal result, not an error.
type ResolvedLocation struct {
	Query           string           `json:"query"`
	NormalizedQuery string           `json:"normalized_query"`
	StateUsed       string           `json:"state_used,omitempty"`
	Location        *Location        `json:"location"`
	Confidence      float64          `json:"confidence"`
	IsAmbiguous     bool             `json:"is_ambiguous"`
	Alternatives    []Location       `json:"alternatives"`
	Method          ResolutionMethod `json:"method"`
}

// Found reports whether a location was matched.
func (r ResolvedLocation) Found() bool {
	return r.Location != nil
}

// LocationSuggestion is one autocomplete entry.
type LocationSuggestion struct {
	ID          uuid.UUID `json:"id"`
	Label       string    `json:"label"`
	Name        string    `json:"name"`
	State       string    `json:"state"`
	CountryCode string    `json:"country_code"`
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lng"`
	Population  *int64    `json:"population,omitempty"`
}

// SuggestOptions narrows an autocomplete lookup.
type SuggestOptions struct {
	Countries []string
	State     string
	Limit     int
}
