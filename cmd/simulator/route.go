package main

import (
	"math"
	"math/rand"

	"github.com/ukydev/fleet-journey/internal/models"
)

type city struct {
	Name string
	models.Location
}

// Cities for realistic routes
var cities = []city{
	{"London", models.Location{Lat: 51.5074, Lon: -0.1278}},
	{"Madrid", models.Location{Lat: 40.4168, Lon: -3.7038}},
	{"Paris", models.Location{Lat: 48.8566, Lon: 2.3522}},
	{"Berlin", models.Location{Lat: 52.5200, Lon: 13.4050}},
	{"Cardiff", models.Location{Lat: 51.4816, Lon: -3.1791}},
	{"Lyon", models.Location{Lat: 45.7640, Lon: 4.8357}},
	{"Porto", models.Location{Lat: 41.1579, Lon: -8.6291}},
	{"São Paulo", models.Location{Lat: -23.5505, Lon: -46.6333}},
	{"Rio de Janeiro", models.Location{Lat: -22.9068, Lon: -43.1729}},
	{"Curitiba", models.Location{Lat: -25.4284, Lon: -49.2733}},
	{"Belo Horizonte", models.Location{Lat: -19.9167, Lon: -43.9345}},
	{"Toronto", models.Location{Lat: 43.6532, Lon: -79.3832}},
	{"Montreal", models.Location{Lat: 45.5019, Lon: -73.5674}},
}

func jitterLocation(rng *rand.Rand, base models.Location, meters float64) models.Location {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rng.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rng.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return models.Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

// route is a straight line between two cities driven at a steady speed.
type route struct {
	From, To  city
	Start     models.Location
	End       models.Location
	LengthKm  float64
	drivenKm  float64
	speedKmh  float64
	rng       *rand.Rand
	position  models.Location
	completed bool
}

// planRoute picks a destination between 50 and 1000 km from a random origin,
// falling back to any other city.
func planRoute(rng *rand.Rand, speedKmh float64) *route {
	from := cities[rng.Intn(len(cities))]
	to := from
	for i := 0; i < 20; i++ {
		cand := cities[rng.Intn(len(cities))]
		d := from.DistanceKm(cand.Location)
		if d > 50 && d < 1000 {
			to = cand
			break
		}
		if cand.Name != from.Name {
			to = cand
		}
	}
	start := jitterLocation(rng, from.Location, 500)
	end := jitterLocation(rng, to.Location, 500)
	return &route{
		From:     from,
		To:       to,
		Start:    start,
		End:      end,
		LengthKm: start.DistanceKm(end),
		speedKmh: speedKmh,
		rng:      rng,
		position: start,
	}
}

// step advances by tickHours of driving with some speed noise and returns
// the new position.
func (r *route) step(tickHours float64) models.Location {
	if r.completed {
		return r.position
	}
	speed := r.speedKmh + (r.rng.Float64()*2-1)*5
	if speed < 15 {
		speed = 15
	}
	r.drivenKm += speed * tickHours
	if r.LengthKm <= 0 || r.drivenKm >= r.LengthKm {
		r.drivenKm = r.LengthKm
		r.position = r.End
		r.completed = true
		return r.position
	}
	r.position = r.Start.Lerp(r.End, r.drivenKm/r.LengthKm)
	return r.position
}

func (r *route) DrivenKm() float64 { return r.drivenKm }
func (r *route) Done() bool        { return r.completed }
