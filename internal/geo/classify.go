// Package geo provides the city gazetteer, great-circle distances and
// distance-band classification.
package geo

// DistanceBand is one of three proximity classes relative to a target city.
type DistanceBand int

const (
	BandInCity DistanceBand = iota + 1 // distance <= near threshold
	BandNearby                         // distance <= wide threshold
	BandWide                           // beyond the wide threshold
)

// String returns the band's label.
func (b DistanceBand) String() string {
	switch b {
	case BandInCity:
		return "in_city"
	case BandNearby:
		return "nearby"
	case BandWide:
		return "wide"
	default:
		return "unknown"
	}
}

// Classify returns the distance band for km.
// Rules:
//   - in_city: km <= near
//   - nearby:  km <= wide
//   - wide:    km > wide
func Classify(km, near, wide int) DistanceBand {
	if km <= near {
		return BandInCity
	}
	if km <= wide {
		return BandNearby
	}
	return BandWide
}

// MarshalText encodes the band as its label.
func (b DistanceBand) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}
