package models

import "math"

const earthRadiusKm = 6371.0

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lon float64 `bson:"lon" json:"lon"`
}

// DistanceKm returns the great-circle distance to other.
func (l Location) DistanceKm(other Location) float64 {
	dLat := (other.Lat - l.Lat) * math.Pi / 180
	dLon := (other.Lon - l.Lon) * math.Pi / 180
	lat1 := l.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

// Lerp returns the point a fraction t of the way towards other.
func (l Location) Lerp(other Location, t float64) Location {
	return Location{Lat: l.Lat + (other.Lat-l.Lat)*t, Lon: l.Lon + (other.Lon-l.Lon)*t}
}
