package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// Coordinate is an immutable lat/lon pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both components are finite and within range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) {
		return false
	}
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// IsNullIsland reports the (0,0) sentinel many receivers emit before a fix.
func (c Coordinate) IsNullIsland() bool {
	return c.Lat == 0 && c.Lon == 0
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	d := earthRadiusKm * c
	if d < 0 {
		return 0
	}
	return d
}

const distanceCacheCap = 100

// DistanceCalculator wraps HaversineKm with a bounded FIFO cache keyed by
// both coordinates rounded to 6 decimal places (~0.1 m). Consecutive samples
// from a throttled GPS feed repeat pairs often enough for this to pay off.
type DistanceCalculator struct {
	cache map[string]float64
	order []string
}

func NewDistanceCalculator() *DistanceCalculator {
	return &DistanceCalculator{cache: make(map[string]float64, distanceCacheCap)}
}

func (d *DistanceCalculator) DistanceKm(a, b Coordinate) float64 {
	key := pairKey(a, b)
	if v, ok := d.cache[key]; ok {
		return v
	}

	v := HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon)

	if len(d.order) >= distanceCacheCap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.cache, oldest)
	}
	d.cache[key] = v
	d.order = append(d.order, key)
	return v
}

func pairKey(a, b Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f|%.6f,%.6f", a.Lat, a.Lon, b.Lat, b.Lon)
}
