package scorer

import (
	"fmt"

	"github.com/sells-group/artist-check/internal/geo"
)

// Verdict is the recommendation shown next to a score.
type Verdict struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Level string `json:"level"` // red, yellow or green
}

var (
	VerdictNotRecommended = Verdict{Code: "not_recommended", Label: "不推荐", Level: "red"}
	VerdictCaution        = Verdict{Code: "caution", Label: "需谨慎", Level: "yellow"}
	VerdictWorthIt        = Verdict{Code: "worth_considering", Label: "值得考虑", Level: "green"}
)

// VerdictFor maps a score onto a recommendation.
func VerdictFor(score int) Verdict {
	switch {
	case score <= 1:
		return VerdictNotRecommended
	case score <= 3:
		return VerdictCaution
	default:
		return VerdictWorthIt
	}
}

var bandPrefix = map[geo.DistanceBand]string{
	geo.BandInCity: "市内",
	geo.BandNearby: "周边",
	geo.BandWide:   "远区",
}

// Descriptions labels each score matrix cell, keyed like the matrix itself,
// using the month thresholds of c.
func Descriptions(c Criteria) map[string]string {
	out := make(map[string]string, 12)
	for _, d := range []geo.DistanceBand{geo.BandInCity, geo.BandNearby, geo.BandWide} {
		p := bandPrefix[d]
		out[CellKey(d, TimeRecent)] = fmt.Sprintf("%s%d个月内", p, c.Time1)
		out[CellKey(d, TimeMid)] = fmt.Sprintf("%s%d-%d个月", p, c.Time1, c.Time2)
		out[CellKey(d, TimeOlder)] = fmt.Sprintf("%s%d-%d个月", p, c.Time2, c.Time3)
		out[CellKey(d, TimeStale)] = fmt.Sprintf("%s%d个月外", p, c.Time3)
	}
	return out
}
