// Package stats derives read-only views from show records: activity around
// a city, map markers for a roster, artist timelines and catalogue summaries.
package stats

import (
	"sort"
	"time"

	"github.com/sells-group/artist-check/internal/geo"
	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/scorer"
)

// NearbyShow is a show annotated with its distance from the city under
// study.
type NearbyShow struct {
	model.Show
	DistanceKM int  `json:"distanceKm"`
	Upcoming   bool `json:"upcoming"`
}

// Bucket groups the shows of one distance ring.
type Bucket struct {
	Total    int          `json:"total"`
	Upcoming int          `json:"upcoming"`
	Shows    []NearbyShow `json:"shows"`
}

func (b *Bucket) add(s NearbyShow) {
	b.Total++
	if s.Upcoming {
		b.Upcoming++
	}
	b.Shows = append(b.Shows, s)
}

// CityReport is the competition picture around a city.
type CityReport struct {
	City   string `json:"city"`
	InCity Bucket `json:"inCity"`
	Nearby Bucket `json:"nearby"`
	Wider  Bucket `json:"wider"`
}

// CityStats buckets shows by distance from city: same city, within
// distance1, within distance2. Shows farther out or in unknown cities are
// left out. Each bucket is newest first.
func CityStats(gaz *geo.Gazetteer, city string, shows []model.Show, c scorer.Criteria, now time.Time, loc *time.Location) CityReport {
	if loc == nil {
		loc = time.UTC
	}
	rep := CityReport{City: city}
	today := midnight(now, loc)

	for _, s := range shows {
		if s.City == "" {
			continue
		}
		km, ok := gaz.Distance(city, s.City)
		if !ok && s.City != city {
			continue
		}
		ns := NearbyShow{Show: s, DistanceKM: km}
		if day, err := s.Day(loc); err == nil {
			ns.Upcoming = day.After(today)
		}

		switch {
		case s.City == city || gaz.SameCity(city, s.City):
			ns.DistanceKM = 0
			rep.InCity.add(ns)
		case km <= c.Distance1:
			rep.Nearby.add(ns)
		case km <= c.Distance2:
			rep.Wider.add(ns)
		}
	}

	for _, b := range []*Bucket{&rep.InCity, &rep.Nearby, &rep.Wider} {
		sortNewestFirst(b.Shows, loc)
	}
	return rep
}

// sortNewestFirst orders by date descending; undated shows go last.
func sortNewestFirst(shows []NearbyShow, loc *time.Location) {
	key := func(s NearbyShow) (time.Time, bool) {
		d, err := s.Day(loc)
		return d, err == nil
	}
	sort.SliceStable(shows, func(i, j int) bool {
		di, oki := key(shows[i])
		dj, okj := key(shows[j])
		if oki != okj {
			return oki
		}
		return di.After(dj)
	})
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
