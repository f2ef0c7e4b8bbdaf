package types

import (
	"time"

	"github.com/google/uuid"
)

// EventCandidate is an event as seen by retrieval and ranking.
type EventCandidate struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	LocationText string     `json:"location"`
	Organizer    string     `json:"organizer,omitempty"`
	URL          string     `json:"url,omitempty"`
	Tags         []string   `json:"tags"`
	Audience     []string   `json:"audience"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	Popularity   *float64   `json:"popularity,omitempty"`
	IsVirtual    bool       `json:"is_virtual"`
	Embedding    []float32  `json:"-"`
}

// HasCoordinates reports whether both coordinates are known.
func (e EventCandidate) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// HasEmbedding reports whether a vector has been computed for the event.
func (e EventCandidate) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// IsUpcoming reports whether the event starts strictly after now.
// Events with no start time are never upcoming.
func (e EventCandidate) IsUpcoming(now time.Time) bool {
	return e.StartTime != nil && e.StartTime.After(now)
}

// ScoredEvent is a search hit before ranking.
type ScoredEvent struct {
	Event         EventCandidate `json:"event"`
	Similarity    float64        `json:"similarity"`
	Fallback      bool           `json:"fallback"`
	DistanceMiles *float64       `json:"distance_miles,omitempty"`
}

// EventEmbeddingUpdate pairs an event with a freshly computed vector.
type EventEmbeddingUpdate struct {
	EventID   uuid.UUID
	Embedding []float32
}
