// Package geo provides the small amount of planar geometry the bot needs:
// lat/lon points and point-in-polygon containment for region matching.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Ring is a closed loop of vertices. The closing vertex may be repeated
// or omitted; containment works either way.
type Ring []Point

// Polygon is an outer ring plus optional holes, GeoJSON-style.
type Polygon struct {
	Outer Ring
	Holes []Ring
}

// ParsePolygon decodes GeoJSON "Polygon" coordinates: an array of rings,
// each ring an array of [lon, lat] positions. The first ring is the outer
// boundary, the rest are holes.
func ParsePolygon(coordinates []byte) (Polygon, error) {
	var rings [][][2]float64
	if err := json.Unmarshal(coordinates, &rings); err != nil {
		return Polygon{}, fmt.Errorf("polygon coordinates: %w", err)
	}
	return FromCoordinates(rings)
}

func FromCoordinates(rings [][][2]float64) (Polygon, error) {
	if len(rings) == 0 {
		return Polygon{}, errors.New("polygon has no rings")
	}
	out := Polygon{}
	for i, raw := range rings {
		if len(raw) < 3 {
			return Polygon{}, fmt.Errorf("polygon ring %d has %d vertices, need at least 3", i, len(raw))
		}
		ring := make(Ring, 0, len(raw))
		for _, pos := range raw {
			// GeoJSON position order is [lon, lat].
			ring = append(ring, Point{Lat: pos[1], Lon: pos[0]})
		}
		if i == 0 {
			out.Outer = ring
		} else {
			out.Holes = append(out.Holes, ring)
		}
	}
	return out, nil
}

// Contains reports whether p lies inside the polygon (holes excluded).
// Points exactly on an edge are treated as inside.
func (pg Polygon) Contains(p Point) bool {
	if !pg.Outer.contains(p) {
		return false
	}
	for _, h := range pg.Holes {
		if h.contains(p) {
			return false
		}
	}
	return true
}

// contains implements the even-odd ray casting rule on the lon/lat plane.
func (r Ring) contains(p Point) bool {
	n := len(r)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		a, b := r[i], r[j]
		if onSegment(p, a, b) {
			return true
		}
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			x := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

const eps = 1e-9

func onSegment(p, a, b Point) bool {
	cross := (b.Lon-a.Lon)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lon-a.Lon)
	if cross > eps || cross < -eps {
		return false
	}
	if p.Lat < min(a.Lat, b.Lat)-eps || p.Lat > max(a.Lat, b.Lat)+eps {
		return false
	}
	if p.Lon < min(a.Lon, b.Lon)-eps || p.Lon > max(a.Lon, b.Lon)+eps {
		return false
	}
	return true
}
