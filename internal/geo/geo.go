package geo

import "math"

// EarthRadiusMeters is the mean radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both coordinates are finite.
func (p Point) Valid() bool {
	return isFinite(p.Lat) && isFinite(p.Lng)
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)

	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// WithinFence reports whether candidate lies no further than maxMeters from anchor.
func WithinFence(anchor, candidate Point, maxMeters float64) bool {
	return Distance(anchor, candidate) <= maxMeters
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
