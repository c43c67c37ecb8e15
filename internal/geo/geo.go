// internal/geo/geo.go
package geo

import "math"

/*
 * Geographic value types used by segment values.
 *
 * Location, Box, Circle and Polygon are immutable value types compared
 * structurally. Each area type implements Area so the evaluator can test
 * containment without knowing the concrete shape.
 *
 * Conventions:
 *   - Latitudes in degrees [-90, 90], longitudes in degrees [-180, 180]
 *   - Box edges are inclusive; a box whose Left exceeds Right wraps the
 *     antimeridian
 *   - Circle radius is expressed in metres, distances use the haversine
 *     formula on a spherical Earth
 */

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371008.8

// Location is a latitude/longitude pair in degrees.
type Location struct {
	Lat float64
	Lon float64
}

// Area is a closed geographic region.
type Area interface {
	Contains(l Location) bool
}

// Box is an axis-aligned latitude/longitude rectangle.
type Box struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// BoxFromTopLeftBottomRight builds a box from its top-left and bottom-right corners.
func BoxFromTopLeftBottomRight(topLeft, bottomRight Location) Box {
	return Box{Top: topLeft.Lat, Right: bottomRight.Lon, Bottom: bottomRight.Lat, Left: topLeft.Lon}
}

// BoxFromTopRightBottomLeft builds a box from its top-right and bottom-left corners.
func BoxFromTopRightBottomLeft(topRight, bottomLeft Location) Box {
	return Box{Top: topRight.Lat, Right: topRight.Lon, Bottom: bottomLeft.Lat, Left: bottomLeft.Lon}
}

// Center returns the midpoint of the box.
func (b Box) Center() Location {
	return Location{Lat: (b.Top + b.Bottom) / 2, Lon: (b.Left + b.Right) / 2}
}

// Contains reports whether l lies within the box, edges included.
func (b Box) Contains(l Location) bool {
	if l.Lat < b.Bottom || l.Lat > b.Top {
		return false
	}
	if b.Left <= b.Right {
		return l.Lon >= b.Left && l.Lon <= b.Right
	}
	// Wraps the antimeridian
	return l.Lon >= b.Left || l.Lon <= b.Right
}

// Circle is a disc on the Earth surface.
type Circle struct {
	Center       Location
	RadiusMeters float64
}

// Contains reports whether l lies within RadiusMeters of the center.
func (c Circle) Contains(l Location) bool {
	return Distance(c.Center, l) <= c.RadiusMeters
}

// Polygon is a closed ring of at least three points.
// The ring is implicitly closed between the last and first point.
type Polygon struct {
	Points []Location
}

// Contains reports whether l lies inside the polygon using ray casting.
// Points are treated as planar lat/lon coordinates.
func (p Polygon) Contains(l Location) bool {
	n := len(p.Points)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := p.Points[i], p.Points[j]
		if (pi.Lat > l.Lat) != (pj.Lat > l.Lat) {
			crossLon := (pj.Lon-pi.Lon)*(l.Lat-pi.Lat)/(pj.Lat-pi.Lat) + pi.Lon
			if l.Lon < crossLon {
				inside = !inside
			}
		}
	}
	return inside
}

// Distance returns the great-circle distance between a and b in metres.
func Distance(a, b Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
