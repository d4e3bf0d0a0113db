package stats

import (
	"sort"
	"time"

	"github.com/sells-group/artist-check/internal/model"
)

// TimelineEntry is a dated show on an artist's timeline.
type TimelineEntry struct {
	model.Show
	Day  time.Time `json:"day"`
	Kind string    `json:"kind"`
}

// Timeline returns the shows dated within one year of now, oldest first.
// Undated shows are dropped.
func Timeline(shows []model.Show, now time.Time, loc *time.Location) []TimelineEntry {
	if loc == nil {
		loc = time.UTC
	}
	today := midnight(now, loc)
	from, to := today.AddDate(-1, 0, 0), today.AddDate(1, 0, 0)

	out := make([]TimelineEntry, 0, len(shows))
	for _, s := range shows {
		day, err := s.Day(loc)
		if err != nil || day.Before(from) || day.After(to) {
			continue
		}
		out = append(out, TimelineEntry{Show: s, Day: day, Kind: s.Kind()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}
