package geo

import (
	_ "embed"
	"encoding/json"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

//go:embed cities.geojson
var builtinCities []byte

// adminSuffix matches administrative suffixes that map features carry but
// show records do not ("杭州市" is stored as "杭州").
var adminSuffix = regexp.MustCompile(`(省|自治区|维吾尔|回族|壮族|特别行政区|市|区|县|自治州)$`)

// CleanName strips a trailing administrative suffix from a place name.
func CleanName(name string) string {
	return adminSuffix.ReplaceAllString(strings.TrimSpace(name), "")
}

// Builtin returns the embedded gazetteer of major cities.
func Builtin() (*Gazetteer, error) {
	locs, err := ParseGeoJSON(strings.NewReader(string(builtinCities)))
	if err != nil {
		return nil, eris.Wrap(err, "geo: parse builtin cities")
	}
	return NewGazetteer(locs), nil
}

// Load returns the builtin gazetteer overlaid with the GeoJSON file at path.
// Builtin cities keep their coordinates when the file names them too. An
// empty path yields the builtin gazetteer.
func Load(path string) (*Gazetteer, error) {
	base, err := ParseGeoJSON(strings.NewReader(string(builtinCities)))
	if err != nil {
		return nil, eris.Wrap(err, "geo: parse builtin cities")
	}
	if path == "" {
		return NewGazetteer(base), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open gazetteer %s", path)
	}
	defer f.Close() //nolint:errcheck

	extra, err := ParseGeoJSON(f)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: parse gazetteer %s", path)
	}

	g := NewGazetteer(append(base, extra...))
	zap.L().Info("geo: gazetteer loaded",
		zap.String("path", path),
		zap.Int("builtin", len(base)),
		zap.Int("file_features", len(extra)),
		zap.Int("cities", g.Len()),
	)
	return g, nil
}

// ParseGeoJSON reads a FeatureCollection and returns one Location per usable
// feature. The name comes from properties.name with administrative suffixes
// removed; the coordinate from properties.center, else a Point geometry,
// else the centre of the geometry's bounds. Features without a name or with
// out-of-range coordinates are skipped.
func ParseGeoJSON(r io.Reader) ([]Location, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "geo: read geojson")
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "geo: decode feature collection")
	}

	log := zap.L().With(zap.String("component", "geo.loader"))
	locs := make([]Location, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil {
			continue
		}
		name, _ := f.Properties["name"].(string)
		name = CleanName(name)
		if name == "" {
			log.Debug("skipping unnamed feature", zap.Int("index", i))
			continue
		}

		lon, lat, ok := featureCoord(f)
		if !ok {
			log.Debug("skipping feature without coordinates", zap.String("name", name))
			continue
		}

		loc, err := NewLocation(name, lon, lat, stringList(f.Properties["aliases"])...)
		if err != nil {
			log.Warn("skipping invalid feature", zap.String("name", name), zap.Error(err))
			continue
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func featureCoord(f *geojson.Feature) (lon, lat float64, ok bool) {
	if center, isList := f.Properties["center"].([]any); isList && len(center) == 2 {
		lon, okLon := center[0].(float64)
		lat, okLat := center[1].(float64)
		if okLon && okLat {
			return lon, lat, true
		}
	}
	switch g := f.Geometry.(type) {
	case nil:
		return 0, 0, false
	case *geom.Point:
		if g.Empty() {
			return 0, 0, false
		}
		return g.X(), g.Y(), true
	default:
		b := g.Bounds()
		if b == nil || b.IsEmpty() {
			return 0, 0, false
		}
		return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2, true
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
