package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/sells-group/artist-check/internal/geo"
	"github.com/sells-group/artist-check/internal/model"
)

// Unknown buckets records missing the grouped field.
const Unknown = "unknown"

// topN is how many artists and venues the rankings keep.
const topN = 5

// Count is a ranked tally.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary aggregates a set of performance records.
type Summary struct {
	Total      int            `json:"total"`
	Artists    int            `json:"artists"`
	Venues     int            `json:"venues"`
	ByMonth    map[string]int `json:"byMonth"` // "2024-06"
	ByProvince map[string]int `json:"byProvince"`
	ByArtist   map[string]int `json:"byArtist"`
	TopArtists []Count        `json:"topArtists"`
	TopVenues  []Count        `json:"topVenues"`
}

// Summarize tallies shows by month, province, artist and venue.
func Summarize(shows []model.Show, loc *time.Location) Summary {
	if loc == nil {
		loc = time.UTC
	}
	sum := Summary{
		Total:      len(shows),
		ByMonth:    map[string]int{},
		ByProvince: map[string]int{},
		ByArtist:   map[string]int{},
	}
	venues := map[string]int{}

	for _, s := range shows {
		month := Unknown
		if day, err := s.Day(loc); err == nil {
			month = day.Format("2006-01")
		}
		sum.ByMonth[month]++

		province := ProvinceName(s.Province)
		if province == "" {
			province = Unknown
		}
		sum.ByProvince[province]++

		if a := strings.TrimSpace(s.Artist); a != "" {
			sum.ByArtist[a]++
		}
		if v := strings.TrimSpace(s.Venue); v != "" {
			venues[v]++
		}
	}

	sum.Artists = len(sum.ByArtist)
	sum.Venues = len(venues)
	sum.TopArtists = top(sum.ByArtist, topN)
	sum.TopVenues = top(venues, topN)
	return sum
}

// ProvinceName strips administrative suffixes from a province name, so
// "广西壮族自治区" becomes "广西".
func ProvinceName(p string) string {
	name := strings.TrimSpace(p)
	for {
		next := geo.CleanName(name)
		if next == name || next == "" {
			return name
		}
		name = next
	}
}

// top ranks counts descending, ties by name.
func top(counts map[string]int, n int) []Count {
	out := make([]Count, 0, len(counts))
	for name, c := range counts {
		out = append(out, Count{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
