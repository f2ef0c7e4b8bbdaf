package locations

import (
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/SuperSchedules/superschedules/internal/types"
)

const (
	minSuggestQueryLen = 2
	defaultSuggestSize = 10
	maxSuggestSize     = 20
)

var ErrQueryTooShort = errors.New("query must be at least 2 characters")

// ResolverConfig holds the disambiguation policy. All confidences are in [0,1].
type ResolverConfig struct {
	PreferredStates     []string
	MaxAlternatives     int
	ExactConfidence     float64
	UniqueConfidence    float64
	PreferredConfidence float64
	AmbiguousConfidence float64
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		PreferredStates:     []string{"MA", "NH", "RI", "CT", "ME", "VT", "NY"},
		MaxAlternatives:     4,
		ExactConfidence:     1.0,
		UniqueConfidence:    1.0,
		PreferredConfidence: 0.8,
		AmbiguousConfidence: 0.5,
	}
}

// Gazetteer is an immutable in-memory index over the locations table.
type Gazetteer struct {
	byName map[string][]types.Location
	byID   map[uuid.UUID]types.Location
	names  []string
}

// NewGazetteer indexes locs by normalized name and id. Entries sharing a name
// are kept in population-descending order, then state, then name.
func NewGazetteer(locs []types.Location) *Gazetteer {
	g := &Gazetteer{
		byName: make(map[string][]types.Location),
		byID:   make(map[uuid.UUID]types.Location, len(locs)),
	}
	for _, loc := range locs {
		if loc.NormalizedName == "" {
			loc.NormalizedName = NormalizeName(loc.Name)
		}
		loc.State = strings.ToUpper(loc.State)
		if loc.CountryCode == "" {
			loc.CountryCode = "US"
		}
		g.byID[loc.ID] = loc
		g.byName[loc.NormalizedName] = append(g.byName[loc.NormalizedName], loc)
	}
	for name, matches := range g.byName {
		sortByPopulation(matches)
		g.names = append(g.names, name)
	}
	sort.Strings(g.names)
	return g
}

func sortByPopulation(locs []types.Location) {
	sort.SliceStable(locs, func(i, j int) bool {
		a, b := locs[i], locs[j]
		if (a.Population == nil) != (b.Population == nil) {
			return a.Population != nil
		}
		if pa, pb := a.PopulationOrZero(), b.PopulationOrZero(); pa != pb {
			return pa > pb
		}
		if a.State != b.State {
			return a.State < b.State
		}
		return a.Name < b.Name
	})
}

func (g *Gazetteer) Len() int {
	return len(g.byID)
}

// ByID returns the location with the given id.
func (g *Gazetteer) ByID(id uuid.UUID) (types.Location, bool) {
	loc, ok := g.byID[id]
	return loc, ok
}

// Lookup returns every location whose normalized name equals name.
func (g *Gazetteer) Lookup(name string) []types.Location {
	matches := g.byName[name]
	out := make([]types.Location, len(matches))
	copy(out, matches)
	return out
}

func (g *Gazetteer) lookupInState(name, state string) (types.Location, bool) {
	for _, loc := range g.byName[name] {
		if loc.State == state {
			return loc, true
		}
	}
	return types.Location{}, false
}

// Resolve maps a raw query to a location following cfg's policy. When the
// query carries no state qualifier, defaultState (if any) is used instead.
func (g *Gazetteer) Resolve(query, defaultState string, cfg ResolverConfig) types.ResolvedLocation {
	normalized, state := NormalizeQuery(query)
	if state == "" && defaultState != "" {
		state = strings.ToUpper(strings.TrimSpace(defaultState))
	}

	result := types.ResolvedLocation{
		Query:           query,
		NormalizedQuery: normalized,
		StateUsed:       state,
		Alternatives:    []types.Location{},
		Method:          types.ResolutionNotFound,
	}
	if normalized == "" {
		return result
	}

	if state != "" {
		if loc, ok := g.lookupInState(normalized, state); ok {
			result.Location = &loc
			result.Confidence = cfg.ExactConfidence
			result.Method = types.ResolutionExact
			return result
		}
	}

	matches := g.byName[normalized]
	switch len(matches) {
	case 0:
		return result
	case 1:
		loc := matches[0]
		result.Location = &loc
		result.Confidence = cfg.UniqueConfidence
		result.Method = types.ResolutionUnique
		return result
	}

	preferred := make(map[string]struct{}, len(cfg.PreferredStates))
	for _, s := range cfg.PreferredStates {
		preferred[strings.ToUpper(s)] = struct{}{}
	}
	selected := -1
	for i, loc := range matches {
		if _, ok := preferred[loc.State]; !ok {
			continue
		}
		if selected >= 0 {
			// A second preferred candidate: preference cannot decide.
			selected = -1
			break
		}
		selected = i
	}

	if selected >= 0 {
		result.Confidence = cfg.PreferredConfidence
		result.Method = types.ResolutionPreferredRegion
	} else {
		selected = 0
		result.Confidence = cfg.AmbiguousConfidence
		result.IsAmbiguous = true
		result.Method = types.ResolutionPopulation
	}
	loc := matches[selected]
	result.Location = &loc

	for i, alt := range matches {
		if i == selected {
			continue
		}
		if cfg.MaxAlternatives > 0 && len(result.Alternatives) >= cfg.MaxAlternatives {
			break
		}
		result.Alternatives = append(result.Alternatives, alt)
	}
	return result
}

// Suggest returns prefix matches for autocomplete: exact name matches first,
// then population descending, state and name.
func (g *Gazetteer) Suggest(query string, opts types.SuggestOptions) ([]types.LocationSuggestion, error) {
	if len(strings.TrimSpace(query)) < minSuggestQueryLen {
		return nil, ErrQueryTooShort
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSuggestSize
	}
	if limit > maxSuggestSize {
		limit = maxSuggestSize
	}

	prefix, parsedState := NormalizeQuery(query)
	state := strings.ToUpper(strings.TrimSpace(opts.State))
	if state == "" {
		state = parsedState
	}
	if prefix == "" {
		return []types.LocationSuggestion{}, nil
	}
	countries := make(map[string]struct{}, len(opts.Countries))
	for _, c := range opts.Countries {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			countries[c] = struct{}{}
		}
	}

	var matches []types.Location
	for i := sort.SearchStrings(g.names, prefix); i < len(g.names) && strings.HasPrefix(g.names[i], prefix); i++ {
		for _, loc := range g.byName[g.names[i]] {
			if state != "" && loc.State != state {
				continue
			}
			if len(countries) > 0 {
				if _, ok := countries[loc.CountryCode]; !ok {
					continue
				}
			}
			matches = append(matches, loc)
		}
	}

	sortByPopulation(matches)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].NormalizedName == prefix && matches[j].NormalizedName != prefix
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]types.LocationSuggestion, 0, len(matches))
	for _, loc := range matches {
		out = append(out, types.LocationSuggestion{
			ID:          loc.ID,
			Label:       loc.Label(),
			Name:        loc.Name,
			State:       loc.State,
			CountryCode: loc.CountryCode,
			Latitude:    loc.Latitude,
			Longitude:   loc.Longitude,
			Population:  loc.Population,
		})
	}
	return out, nil
}
