package geo

import "math"

// EarthRadiusKm is Earth's radius in kilometers for the Haversine calculation.
const EarthRadiusKm = 6371.0

// DistanceKm calculates the great-circle distance between two points
// on Earth in kilometers using the Haversine formula.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Locatable is anything with optional coordinates. ok must be false when a
// coordinate is unknown; such candidates are treated as infinitely far away.
type Locatable interface {
	Coordinates() (lat, lon float64, ok bool)
}

// DistanceKmTo returns the distance from the origin to a candidate,
// or +Inf when the candidate has no known location.
func DistanceKmTo(c Locatable, originLat, originLon float64) float64 {
	lat, lon, ok := c.Coordinates()
	if !ok {
		return math.Inf(1)
	}
	return DistanceKm(originLat, originLon, lat, lon)
}

// Nearest returns the candidate closest to the origin. Ties are broken in
// favor of the earliest candidate in the slice. The second return value is
// false when the slice is empty or no candidate has a known location.
func Nearest[T Locatable](candidates []T, originLat, originLon float64) (T, bool) {
	var nearest T
	best := math.Inf(1)
	found := false
	for _, c := range candidates {
		d := DistanceKmTo(c, originLat, originLon)
		if math.IsInf(d, 1) {
			continue
		}
		if !found || d < best {
			nearest = c
			best = d
			found = true
		}
	}
	return nearest, found
}
