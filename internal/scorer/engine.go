package scorer

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/artist-check/internal/geo"
	"github.com/sells-group/artist-check/internal/model"
)

// Reason explains why a show could not be scored.
type Reason string

const (
	ReasonUnknownCity       Reason = "unknown_city"
	ReasonUnknownTargetCity Reason = "unknown_target_city"
	ReasonBadDate           Reason = "bad_date"
	ReasonBadTargetDate     Reason = "bad_target_date"
)

// ShowScore is the classification of one show against a target.
type ShowScore struct {
	Show         model.Show       `json:"show"`
	Scorable     bool             `json:"scorable"`
	Score        int              `json:"score"`
	DistanceKM   int              `json:"distanceKm"`
	MonthsDiff   int              `json:"monthsDiff"`
	DistanceBand geo.DistanceBand `json:"distanceBand,omitempty"`
	TimeBand     TimeBand         `json:"timeBand,omitempty"`
	Reason       Reason           `json:"reason,omitempty"`
}

// Engine classifies shows against a target. It holds no mutable state and is
// safe for concurrent use; criteria are passed to every call.
type Engine struct {
	gaz *geo.Gazetteer
	loc *time.Location
}

// NewEngine creates an Engine resolving cities through gaz and reading dates
// in loc (UTC when nil).
func NewEngine(gaz *geo.Gazetteer, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{gaz: gaz, loc: loc}
}

// Gazetteer returns the engine's city lookup.
func (e *Engine) Gazetteer() *geo.Gazetteer { return e.gaz }

// Location returns the zone dates are read in.
func (e *Engine) Location() *time.Location { return e.loc }

// MonthsBetween returns the absolute whole-month difference between two
// dates, ignoring the day of month.
func MonthsBetween(a, b time.Time) int {
	m := (a.Year()-b.Year())*12 + int(a.Month()) - int(b.Month())
	if m < 0 {
		return -m
	}
	return m
}

// Classify scores one show against target under c.
func (e *Engine) Classify(show model.Show, target model.Target, c Criteria) ShowScore {
	out := ShowScore{Show: show}

	to, ok := e.gaz.Lookup(target.City)
	if !ok {
		out.Reason = ReasonUnknownTargetCity
		return out
	}
	from, ok := e.gaz.Lookup(show.City)
	if !ok {
		out.Reason = ReasonUnknownCity
		return out
	}
	targetDay, err := model.ParseDay(target.Date, e.loc)
	if err != nil {
		out.Reason = ReasonBadTargetDate
		return out
	}
	day, err := show.Day(e.loc)
	if err != nil {
		out.Reason = ReasonBadDate
		return out
	}

	out.DistanceKM = geo.DistanceKM(to, from)
	out.MonthsDiff = MonthsBetween(targetDay, day)
	out.DistanceBand = c.DistanceBand(out.DistanceKM)
	out.TimeBand = c.TimeBand(out.MonthsDiff)
	out.Score = c.Scores.At(out.DistanceBand, out.TimeBand)
	out.Scorable = true
	return out
}

// Breakdown classifies every show.
func (e *Engine) Breakdown(shows []model.Show, target model.Target, c Criteria) []ShowScore {
	out := make([]ShowScore, len(shows))
	for i, s := range shows {
		out[i] = e.Classify(s, target, c)
	}
	return out
}

// ScoreArtist reduces an artist's shows to the lowest score among the
// scorable ones. No shows, or no scorable show, yields MaxScore.
func (e *Engine) ScoreArtist(shows []model.Show, target model.Target, c Criteria) int {
	if len(shows) == 0 {
		return MaxScore
	}

	best := MaxScore
	scored := 0
	reasons := make(map[Reason]int)
	for _, s := range shows {
		r := e.Classify(s, target, c)
		if !r.Scorable {
			reasons[r.Reason]++
			continue
		}
		if scored == 0 || r.Score < best {
			best = r.Score
		}
		scored++
	}

	if scored == 0 {
		zap.L().Warn("scorer: no scorable shows, using default score",
			zap.Int("shows", len(shows)),
			zap.String("target_city", target.City),
			zap.Any("reasons", reasons),
		)
		return MaxScore
	}
	return best
}
