package geo

import (
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		wantM                  float64
		tolM                   float64
	}{
		{"same point", 13.7563, 100.5018, 13.7563, 100.5018, 0, 0.01},
		{"siam to silom", 13.7463, 100.5348, 13.7262, 100.5234, 2560, 150},
		{"bangkok to chiang mai", 13.7563, 100.5018, 18.7883, 98.9853, 581000, 10000},
		{"across equator", -0.5, 100, 0.5, 100, 111195, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.wantM) > tt.tolM {
				t.Errorf("Haversine() = %.1f m, want %.1f ± %.1f", got, tt.wantM, tt.tolM)
			}
		})
	}
}

func TestHaversineSymmetry(t *testing.T) {
	a := Haversine(13.7563, 100.5018, 13.7463, 100.5348)
	b := Haversine(13.7463, 100.5348, 13.7563, 100.5018)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", a, b)
	}
}

func TestLookupArea(t *testing.T) {
	a, ok := LookupArea("Thonglor")
	if !ok {
		t.Fatal("expected thonglor to resolve")
	}
	if a.Key != "thonglor" {
		t.Errorf("got key %q", a.Key)
	}

	if _, ok := LookupArea("Victory Monument"); !ok {
		t.Error("expected space-separated lookup to normalize")
	}

	if _, ok := LookupArea("atlantis"); ok {
		t.Error("unknown area should not resolve")
	}
}

func TestBoundingBoxContains(t *testing.T) {
	vp := BoundingBox(13.7563, 100.5018, 2000)
	if !vp.Contains(13.7563, 100.5018) {
		t.Fatal("center must be inside its own box")
	}
	// Point ~1.9km east must be inside the 2km box.
	if !vp.Contains(13.7563, 100.5194) {
		t.Error("point inside radius excluded by bounding box")
	}
	// Point ~30km away must be outside.
	if vp.Contains(13.7563, 100.78) {
		t.Error("far point should be outside the box")
	}
}

func TestAreaViewport(t *testing.T) {
	a, _ := LookupArea("siam")
	vp := a.Viewport()
	if !vp.Contains(a.Lat, a.Lng) {
		t.Fatal("area center must be inside its viewport")
	}
}
