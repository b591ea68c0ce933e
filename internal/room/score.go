package room

import "math"

// Scorer turns a guess into points for the round.
type Scorer interface {
	Score(target, guess Coords) int
}

const earthRadiusKm = 6371.0

// DistanceScorer awards MaxPoints for a perfect guess, decaying
// exponentially with great-circle distance.
type DistanceScorer struct {
	MaxPoints int
	ScaleKm   float64
}

var DefaultScorer = DistanceScorer{MaxPoints: 5000, ScaleKm: 2000}

func (s DistanceScorer) Score(target, guess Coords) int {
	d := DistanceKm(target, guess)
	return int(math.Round(float64(s.MaxPoints) * math.Exp(-d/s.ScaleKm)))
}

// DistanceKm is the haversine distance between two points.
func DistanceKm(a, b Coords) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
