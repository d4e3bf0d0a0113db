package geo

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// EarthRadiusKM is the mean Earth radius used by DistanceKM.
const EarthRadiusKM = 6371.0

// Location is a named city with a lon/lat point (degrees, SRID 4326).
type Location struct {
	Name    string
	Aliases []string
	Point   *geom.Point
}

// NewLocation validates the coordinates and builds a Location.
func NewLocation(name string, lon, lat float64, aliases ...string) (Location, error) {
	if name == "" {
		return Location{}, eris.New("geo: location name is required")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return Location{}, eris.Errorf("geo: %s: longitude %v out of range", name, lon)
	}
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return Location{}, eris.Errorf("geo: %s: latitude %v out of range", name, lat)
	}
	return Location{
		Name:    name,
		Aliases: aliases,
		Point:   geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326),
	}, nil
}

// Lon returns the longitude in degrees.
func (l Location) Lon() float64 { return l.Point.X() }

// Lat returns the latitude in degrees.
func (l Location) Lat() float64 { return l.Point.Y() }

// MarshalJSON renders the location the way map renderers expect it.
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name        string     `json:"name"`
		Aliases     []string   `json:"aliases,omitempty"`
		Coordinates [2]float64 `json:"coordinates"`
	}{l.Name, l.Aliases, [2]float64{l.Lon(), l.Lat()}})
}

// DistanceKM returns the haversine great-circle distance between a and b,
// rounded to the nearest kilometre.
func DistanceKM(a, b Location) int {
	lat1 := radians(a.Lat())
	lat2 := radians(b.Lat())
	dLat := radians(b.Lat() - a.Lat())
	dLon := radians(b.Lon() - a.Lon())

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return int(math.Round(EarthRadiusKM * c))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
