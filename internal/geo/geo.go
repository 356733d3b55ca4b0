package geo

import "math"

// EarthRadiusMeters is Earth's mean radius used for great-circle math.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}

// DistanceMeters computes the great-circle distance between two points
// using the Haversine formula.
func DistanceMeters(from, to Point) float64 {
	const degToRad = math.Pi / 180

	dLat := (to.Lat - from.Lat) * degToRad
	dLon := (to.Lon - from.Lon) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(from.Lat*degToRad)*math.Cos(to.Lat*degToRad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// ETASeconds estimates travel time for the remaining distance at the given
// speed (m/s). Returns 0 when the speed is not meaningful.
func ETASeconds(distanceMeters, speed float64) float64 {
	if speed <= 0 || distanceMeters <= 0 {
		return 0
	}
	return distanceMeters / speed
}
