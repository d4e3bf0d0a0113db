package stats

import (
	"time"

	"github.com/sells-group/artist-check/internal/model"
)

// RecentGrouping selects the outer key of GroupRecent.
type RecentGrouping string

const (
	GroupByDate   RecentGrouping = "date"
	GroupByArtist RecentGrouping = "artist"
)

const (
	unknownArtist = "未知艺人"
	unknownDate   = "undated"
)

// RecentGroup is one outer bucket of the recent updates feed.
type RecentGroup struct {
	Key    string           `json:"key"`
	Groups []RecentSubgroup `json:"groups"`
}

// RecentSubgroup holds the shows sharing both the outer and inner key.
type RecentSubgroup struct {
	Key   string       `json:"key"`
	Shows []model.Show `json:"shows"`
}

// GroupRecent buckets shows by day then artist, or by artist then day.
// Buckets keep the order in which their first show appears, so a feed
// sorted newest first stays newest first.
func GroupRecent(shows []model.Show, by RecentGrouping, loc *time.Location) []RecentGroup {
	if loc == nil {
		loc = time.UTC
	}
	out := []RecentGroup{}
	outer := map[string]int{}
	inner := map[[2]string]int{}
	for _, s := range shows {
		day := unknownDate
		if d, err := s.Day(loc); err == nil {
			day = d.Format(time.DateOnly)
		}
		artist := s.Artist
		if artist == "" {
			artist = unknownArtist
		}
		ok, ik := day, artist
		if by == GroupByArtist {
			ok, ik = artist, day
		}

		oi, found := outer[ok]
		if !found {
			oi = len(out)
			outer[ok] = oi
			out = append(out, RecentGroup{Key: ok})
		}
		key := [2]string{ok, ik}
		ii, found := inner[key]
		if !found {
			ii = len(out[oi].Groups)
			inner[key] = ii
			out[oi].Groups = append(out[oi].Groups, RecentSubgroup{Key: ik})
		}
		out[oi].Groups[ii].Shows = append(out[oi].Groups[ii].Shows, s)
	}
	return out
}
