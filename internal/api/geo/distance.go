package geo

import (
	"math"

	"github.com/SuperSchedules/superschedules/internal/types"
)

const (
	EarthRadiusMiles   = 3959.0
	DefaultRadiusMiles = 10.0
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

func radiansToDegrees(r float64) float64 {
	return r * 180 / math.Pi
}

// Haversine returns the great-circle distance between a and b in miles.
func Haversine(a, b Point) float64 {
	lat1 := degreesToRadians(a.Lat)
	lat2 := degreesToRadians(b.Lat)
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMiles * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BoundingBox is a cheap rectangular pre-filter around a center point.
// When MinLng > MaxLng the box wraps across the antimeridian.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// BoundingBoxFor returns a box that fully contains the circle of radiusMiles
// around center. The longitude half-width is taken at the circle's widest
// point, which lies poleward of the center. When the circle reaches a pole
// the longitude span widens to the whole globe.
func BoundingBoxFor(center Point, radiusMiles float64) BoundingBox {
	angular := radiusMiles / EarthRadiusMiles
	latDelta := radiansToDegrees(angular)
	box := BoundingBox{
		MinLat: math.Max(-90, center.Lat-latDelta),
		MaxLat: math.Min(90, center.Lat+latDelta),
	}

	sinAngular := math.Sin(angular)
	cosLat := math.Cos(degreesToRadians(center.Lat))
	if box.MinLat <= -90 || box.MaxLat >= 90 || angular >= math.Pi/2 || sinAngular >= cosLat {
		box.MinLng, box.MaxLng = -180, 180
		return box
	}
	lngDelta := radiansToDegrees(math.Asin(sinAngular / cosLat))
	box.MinLng = wrapLongitude(center.Lng - lngDelta)
	box.MaxLng = wrapLongitude(center.Lng + lngDelta)
	return box
}

func wrapLongitude(lng float64) float64 {
	for lng < -180 {
		lng += 360
	}
	for lng > 180 {
		lng -= 360
	}
	return lng
}

// Contains reports whether p lies inside the box.
func (b BoundingBox) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.MinLng <= b.MaxLng {
		return p.Lng >= b.MinLng && p.Lng <= b.MaxLng
	}
	return p.Lng >= b.MinLng || p.Lng <= b.MaxLng
}

// EventPoint returns the event's coordinates, if both are known.
func EventPoint(e types.EventCandidate) (Point, bool) {
	if !e.HasCoordinates() {
		return Point{}, false
	}
	return Point{Lat: *e.Latitude, Lng: *e.Longitude}, true
}

// FilterByDistance keeps candidates within radiusMiles of center, annotated
// with their distance. Candidates without coordinates are excluded rather
// than given a default distance. A non-positive radius means DefaultRadiusMiles.
// Input order is preserved.
func FilterByDistance(candidates []types.ScoredEvent, center Point, radiusMiles float64) []types.ScoredEvent {
	if radiusMiles <= 0 {
		radiusMiles = DefaultRadiusMiles
	}
	box := BoundingBoxFor(center, radiusMiles)

	kept := make([]types.ScoredEvent, 0, len(candidates))
	for _, c := range candidates {
		p, ok := EventPoint(c.Event)
		if !ok || !box.Contains(p) {
			continue
		}
		d := Haversine(center, p)
		if d > radiusMiles {
			continue
		}
		c.DistanceMiles = &d
		kept = append(kept, c)
	}
	return kept
}

// AnnotateDistances sets DistanceMiles on every candidate with coordinates and
// leaves the rest untouched. Nothing is excluded.
func AnnotateDistances(candidates []types.ScoredEvent, center Point) []types.ScoredEvent {
	out := make([]types.ScoredEvent, len(candidates))
	for i, c := range candidates {
		if p, ok := EventPoint(c.Event); ok {
			d := Haversine(center, p)
			c.DistanceMiles = &d
		} else {
			c.DistanceMiles = nil
		}
		out[i] = c
	}
	return out
}
