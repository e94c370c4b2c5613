package geo

import (
	_ "embed"
	"encoding/json"
	"math"
	"sort"
	"strings"
)

// Area is a named metro-area neighborhood with a circular extent. Areas act
// as coarse filters for AREA slots and for the `area` search parameter.
type Area struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RadiusM float64 `json:"radius_m"`
}

//go:embed areas.json
var areasJSON []byte

var areasByKey map[string]Area

func init() {
	var list []Area
	if err := json.Unmarshal(areasJSON, &list); err != nil {
		panic("failed to load areas.json: " + err.Error())
	}
	areasByKey = make(map[string]Area, len(list))
	for _, a := range list {
		areasByKey[a.Key] = a
	}
}

// LookupArea resolves a user-supplied area name to a registered area.
func LookupArea(name string) (Area, bool) {
	a, ok := areasByKey[NormalizeName(name)]
	return a, ok
}

// Areas returns all registered areas sorted by key.
func Areas() []Area {
	out := make([]Area, 0, len(areasByKey))
	for _, a := range areasByKey {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// NormalizeName converts a string to lowercase with spaces replaced by underscores.
func NormalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(normalized, " ", "_")
}

// Viewport is a rectangular lat/lng window.
type Viewport struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether the point lies inside the viewport (inclusive).
func (v Viewport) Contains(lat, lng float64) bool {
	return lat >= v.MinLat && lat <= v.MaxLat && lng >= v.MinLng && lng <= v.MaxLng
}

// Viewport approximates the area's circular extent as a bounding box.
func (a Area) Viewport() Viewport {
	return BoundingBox(a.Lat, a.Lng, a.RadiusM)
}

const earthRadiusM = 6371000.0

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	la1 := lat1 * math.Pi / 180
	la2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(la1)*math.Cos(la2)*sinLng*sinLng
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BoundingBox returns the lat/lng window that encloses a circle around the
// point. Used as a cheap SQL prefilter before exact haversine checks.
func BoundingBox(lat, lng, radiusM float64) Viewport {
	dLat := radiusM / earthRadiusM * 180 / math.Pi
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 1e-6 {
		cos = 1e-6
	}
	dLng := radiusM / (earthRadiusM * cos) * 180 / math.Pi
	return Viewport{
		MinLat: lat - dLat,
		MinLng: lng - dLng,
		MaxLat: lat + dLat,
		MaxLng: lng + dLng,
	}
}
