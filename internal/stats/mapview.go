package stats

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/artist-check/internal/geo"
	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/scorer"
)

// daysPerMonth converts the criteria's timeRange into a window.
const daysPerMonth = 30

// MarkerShow is one roster show at a marker.
type MarkerShow struct {
	Artist string `json:"artist"`
	Date   string `json:"date"`
	Venue  string `json:"venue,omitempty"`
	Future bool   `json:"future"`
}

// Marker is a city with roster activity near the plan date.
type Marker struct {
	City       string       `json:"city"`
	Lon        float64      `json:"lon"`
	Lat        float64      `json:"lat"`
	DistanceKM *int         `json:"distanceKm"` // to the target city, nil when unknown
	Shows      []MarkerShow `json:"shows"`
}

// MapData feeds the map renderer.
type MapData struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Markers   []Marker `json:"markers"`
	Provinces []string `json:"provinces"`
}

// MapView collects roster shows dated within timeRange months (30-day
// months) either side of the target date, grouped per city. Shows in cities
// the gazetteer does not know cannot be placed and are skipped.
func MapView(gaz *geo.Gazetteer, roster []model.ArtistAssessment, t model.Target, c scorer.Criteria, now time.Time, loc *time.Location) (MapData, error) {
	if loc == nil {
		loc = time.UTC
	}
	plan, err := model.ParseDay(t.Date, loc)
	if err != nil {
		return MapData{}, eris.Wrap(err, "stats: map view needs a target date")
	}
	span := time.Duration(c.TimeRange*daysPerMonth) * 24 * time.Hour
	from, to := plan.Add(-span), plan.Add(span)
	today := midnight(now, loc)

	byCity := map[string]*Marker{}
	provinces := map[string]bool{}
	for _, a := range roster {
		for _, s := range a.Shows {
			day, err := s.Day(loc)
			if err != nil || day.Before(from) || day.After(to) {
				continue
			}
			place, ok := gaz.Lookup(s.City)
			if !ok {
				continue
			}
			m := byCity[place.Name]
			if m == nil {
				m = &Marker{City: place.Name, Lon: place.Lon(), Lat: place.Lat()}
				if km, ok := gaz.Distance(t.City, place.Name); ok {
					m.DistanceKM = &km
				}
				byCity[place.Name] = m
			}
			m.Shows = append(m.Shows, MarkerShow{
				Artist: a.Name,
				Date:   day.Format(time.DateOnly),
				Venue:  s.Venue,
				Future: day.After(today),
			})
			if p := ProvinceName(s.Province); p != "" {
				provinces[p] = true
			}
		}
	}

	out := MapData{
		From:      from.Format(time.DateOnly),
		To:        to.Format(time.DateOnly),
		Markers:   make([]Marker, 0, len(byCity)),
		Provinces: make([]string, 0, len(provinces)),
	}
	for _, m := range byCity {
		sort.SliceStable(m.Shows, func(i, j int) bool { return m.Shows[i].Date < m.Shows[j].Date })
		out.Markers = append(out.Markers, *m)
	}
	sort.Slice(out.Markers, func(i, j int) bool { return out.Markers[i].City < out.Markers[j].City })
	for p := range provinces {
		out.Provinces = append(out.Provinces, p)
	}
	sort.Strings(out.Provinces)
	return out, nil
}
