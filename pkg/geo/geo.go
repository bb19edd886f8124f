package geo

import "math"

// EarthRadiusKm 地球半徑 (km)
const EarthRadiusKm = 6371.0

// Point 經緯度座標
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HaversineKm 計算兩點間大圓距離 (km)
func HaversineKm(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// WithinKm check the distance between a and b is within radiusKm
func WithinKm(a, b Point, radiusKm float64) bool {
	return HaversineKm(a, b) <= radiusKm
}
