// Package geo provides great-circle geometry helpers for geo-referenced maps.
//
// mapmodel's lane graph is purely topological (lanes, distances, turns); a Map may
// optionally carry real-world coordinates for its intersections and buildings, used
// only for procedural map generation in tests and for the HTTP API's map preview.
// It is strictly for placing features on a globe; movement along lanes stays
// plain distance arithmetic in mapmodel/driving.
package geo

import (
	"math"
	"math/rand"
)

const earthRadiusMeters = 6371000.0

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func radiansToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// LatLon is a coordinate on the globe.
type LatLon struct {
	Lat float64
	Lon float64
}

// GreatCircleDistance returns the distance in meters between two coordinates.
func GreatCircleDistance(start, end LatLon) float64 {
	lat1 := degreesToRadians(start.Lat)
	lat2 := degreesToRadians(end.Lat)
	lon1 := degreesToRadians(start.Lon)
	lon2 := degreesToRadians(end.Lon)

	dLat := lat2 - lat1
	dLon := lon2 - lon1
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// InitialBearing returns the compass bearing in degrees from start to end.
func InitialBearing(start, end LatLon) float64 {
	lat1 := degreesToRadians(start.Lat)
	lat2 := degreesToRadians(end.Lat)
	dLon := degreesToRadians(end.Lon - start.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	bearing := math.Atan2(y, x)
	bearingDeg := radiansToDegrees(bearing)

	if bearingDeg < 0 {
		bearingDeg += 360
	}
	return bearingDeg
}

// BoundingBox defines a rectangular geographic area.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// BoundingBoxFromPoints returns the min/max extents that contain the provided points.
func BoundingBoxFromPoints(points []LatLon) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}
	minLat, maxLat := points[0].Lat, points[0].Lat
	minLon, maxLon := points[0].Lon, points[0].Lon
	for _, p := range points[1:] {
		if p.Lat < minLat {
			minLat = p.Lat
		}
		if p.Lat > maxLat {
			maxLat = p.Lat
		}
		if p.Lon < minLon {
			minLon = p.Lon
		}
		if p.Lon > maxLon {
			maxLon = p.Lon
		}
	}
	return BoundingBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
}

// RandomPointsWithinBounds returns count random points within the bounding box,
// drawn from rng.
func RandomPointsWithinBounds(rng *rand.Rand, bounds BoundingBox, count int) []LatLon {
	if count <= 0 {
		return nil
	}

	latSpan := bounds.MaxLat - bounds.MinLat
	lonSpan := bounds.MaxLon - bounds.MinLon
	if latSpan == 0 {
		latSpan = 1
	}
	if lonSpan == 0 {
		lonSpan = 1
	}

	points := make([]LatLon, 0, count)
	for i := 0; i < count; i++ {
		lat := bounds.MinLat + rng.Float64()*latSpan
		lon := bounds.MinLon + rng.Float64()*lonSpan
		points = append(points, LatLon{Lat: lat, Lon: lon})
	}
	return points
}
