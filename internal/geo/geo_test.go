package geo

import (
	"testing"
)

func square(lat0, lon0, lat1, lon1 float64) Ring {
	return Ring{
		{Lat: lat0, Lon: lon0},
		{Lat: lat0, Lon: lon1},
		{Lat: lat1, Lon: lon1},
		{Lat: lat1, Lon: lon0},
	}
}

func TestPolygonContains(t *testing.T) {
	t.Parallel()
	pg := Polygon{Outer: square(0, 0, 10, 10)}

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{name: "center", p: Point{Lat: 5, Lon: 5}, want: true},
		{name: "outside", p: Point{Lat: 15, Lon: 5}, want: false},
		{name: "negative side", p: Point{Lat: -1, Lon: 5}, want: false},
		{name: "on edge", p: Point{Lat: 0, Lon: 5}, want: true},
		{name: "on vertex", p: Point{Lat: 0, Lon: 0}, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := pg.Contains(tt.p); got != tt.want {
				t.Fatalf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestPolygonHole(t *testing.T) {
	t.Parallel()
	pg := Polygon{
		Outer: square(0, 0, 10, 10),
		Holes: []Ring{square(4, 4, 6, 6)},
	}
	if pg.Contains(Point{Lat: 5, Lon: 5}) {
		t.Fatal("point inside hole should not be contained")
	}
	if !pg.Contains(Point{Lat: 2, Lon: 2}) {
		t.Fatal("point between outer ring and hole should be contained")
	}
}

func TestParsePolygon(t *testing.T) {
	t.Parallel()
	raw := []byte(`[[[0,0],[10,0],[10,10],[0,10],[0,0]]]`)
	pg, err := ParsePolygon(raw)
	if err != nil {
		t.Fatalf("ParsePolygon: %v", err)
	}
	if !pg.Contains(Point{Lat: 5, Lon: 5}) {
		t.Fatal("expected center to be contained")
	}

	if _, err := ParsePolygon([]byte(`[[[0,0],[1,1]]]`)); err == nil {
		t.Fatal("expected error for degenerate ring")
	}
	if _, err := ParsePolygon([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
