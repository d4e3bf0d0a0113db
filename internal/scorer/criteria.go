// Package scorer implements the artist market-freshness score: per-show
// classification by distance and recency, and worst-case aggregation.
package scorer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/artist-check/internal/geo"
)

// MaxScore is the best possible score. Artists without history get it.
const MaxScore = 5

// DefaultTimeRange is the display window, in months, around the target date.
const DefaultTimeRange = 6

// TimeBand is one of four recency classes relative to the target date.
type TimeBand int

const (
	TimeRecent TimeBand = iota + 1 // months <= time1
	TimeMid                        // months <= time2
	TimeOlder                      // months <= time3
	TimeStale                      // beyond time3
)

// String returns the band's label.
func (b TimeBand) String() string {
	switch b {
	case TimeRecent:
		return "recent"
	case TimeMid:
		return "mid"
	case TimeOlder:
		return "older"
	case TimeStale:
		return "stale"
	default:
		return "unknown"
	}
}

// MarshalText encodes the band as its label.
func (b TimeBand) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// ScoreMatrix maps (distance band, time band) to a score. Row 0 is
// geo.BandInCity, column 0 is TimeRecent.
type ScoreMatrix [3][4]int

// CellKey returns the persisted key of a matrix cell, "d1t1" through "d3t4".
func CellKey(d geo.DistanceBand, t TimeBand) string {
	return fmt.Sprintf("d%dt%d", int(d), int(t))
}

// At returns the score for a band pair.
func (m ScoreMatrix) At(d geo.DistanceBand, t TimeBand) int {
	return m[int(d)-1][int(t)-1]
}

func (m ScoreMatrix) toMap() map[string]int {
	out := make(map[string]int, 12)
	for d := range m {
		for t := range m[d] {
			out[CellKey(geo.DistanceBand(d+1), TimeBand(t+1))] = m[d][t]
		}
	}
	return out
}

func (m *ScoreMatrix) fromMap(in map[string]int) error {
	var missing []string
	var next ScoreMatrix
	for d := range next {
		for t := range next[d] {
			key := CellKey(geo.DistanceBand(d+1), TimeBand(t+1))
			v, ok := in[key]
			if !ok {
				missing = append(missing, key)
				continue
			}
			next[d][t] = v
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("scorer: score matrix missing %s", strings.Join(missing, ", "))
	}
	var unknown []string
	known := next.toMap()
	for k := range in {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return eris.Errorf("scorer: score matrix has unknown keys %s", strings.Join(unknown, ", "))
	}
	*m = next
	return nil
}

// MarshalJSON encodes the matrix as the twelve d?t? keys.
func (m ScoreMatrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.toMap())
}

// UnmarshalJSON requires all twelve keys and rejects any other.
func (m *ScoreMatrix) UnmarshalJSON(data []byte) error {
	var in map[string]int
	if err := json.Unmarshal(data, &in); err != nil {
		return eris.Wrap(err, "scorer: decode score matrix")
	}
	return m.fromMap(in)
}

// MarshalYAML encodes the matrix as the twelve d?t? keys.
func (m ScoreMatrix) MarshalYAML() (any, error) {
	return m.toMap(), nil
}

// UnmarshalYAML requires all twelve keys and rejects any other.
func (m *ScoreMatrix) UnmarshalYAML(value *yaml.Node) error {
	var in map[string]int
	if err := value.Decode(&in); err != nil {
		return eris.Wrap(err, "scorer: decode score matrix")
	}
	return m.fromMap(in)
}

// Criteria is the scoring configuration. It is a plain value; copies never
// share state, so a snapshot taken for one sweep cannot change under it.
type Criteria struct {
	Distance1 int         `json:"distance1" yaml:"distance1"`
	Distance2 int         `json:"distance2" yaml:"distance2"`
	Time1     int         `json:"time1" yaml:"time1"`
	Time2     int         `json:"time2" yaml:"time2"`
	Time3     int         `json:"time3" yaml:"time3"`
	TimeRange int         `json:"timeRange" yaml:"timeRange"`
	Scores    ScoreMatrix `json:"scores" yaml:"scores"`
}

// DefaultCriteria returns the stock thresholds and score matrix.
func DefaultCriteria() Criteria {
	return Criteria{
		Distance1: 300,
		Distance2: 600,
		Time1:     3,
		Time2:     6,
		Time3:     12,
		TimeRange: DefaultTimeRange,
		Scores: ScoreMatrix{
			{0, 1, 2, 3},
			{1, 2, 3, 4},
			{2, 3, 4, 5},
		},
	}
}

// DistanceBand returns the distance band for km under c.
func (c Criteria) DistanceBand(km int) geo.DistanceBand {
	return geo.Classify(km, c.Distance1, c.Distance2)
}

// TimeBand returns the recency band for a month difference under c.
func (c Criteria) TimeBand(months int) TimeBand {
	switch {
	case months <= c.Time1:
		return TimeRecent
	case months <= c.Time2:
		return TimeMid
	case months <= c.Time3:
		return TimeOlder
	default:
		return TimeStale
	}
}

// ValidateCriteria checks that c is internally consistent.
func ValidateCriteria(c Criteria) error {
	var errs []string

	// Distances.
	if c.Distance1 <= 0 {
		errs = append(errs, "distance1 must be > 0")
	}
	if c.Distance2 <= 0 {
		errs = append(errs, "distance2 must be > 0")
	}
	if c.Distance1 > 0 && c.Distance2 > 0 && c.Distance2 <= c.Distance1 {
		errs = append(errs, "distance2 must be > distance1")
	}

	// Months.
	if c.Time1 <= 0 {
		errs = append(errs, "time1 must be > 0")
	}
	if c.Time2 <= c.Time1 {
		errs = append(errs, "time2 must be > time1")
	}
	if c.Time3 <= c.Time2 {
		errs = append(errs, "time3 must be > time2")
	}
	if c.TimeRange <= 0 {
		errs = append(errs, "timeRange must be > 0")
	}

	for d := range c.Scores {
		for t, v := range c.Scores[d] {
			if v < 0 || v > MaxScore {
				errs = append(errs, fmt.Sprintf("%s must be between 0 and %d",
					CellKey(geo.DistanceBand(d+1), TimeBand(t+1)), MaxScore))
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: criteria validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
