package geo

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// DefaultSearchLimit caps Search results when no limit is given.
const DefaultSearchLimit = 15

// Gazetteer resolves city names to locations. It is immutable after
// construction and safe for concurrent use.
type Gazetteer struct {
	byKey map[string]Location
	keys  []string // every name and alias, sorted
	names []string // canonical names, sorted
}

// NewGazetteer indexes locs by name and alias. The first location to claim a
// key keeps it, so callers list authoritative sources first.
func NewGazetteer(locs []Location) *Gazetteer {
	g := &Gazetteer{byKey: make(map[string]Location, len(locs))}
	for _, loc := range locs {
		if _, taken := g.byKey[loc.Name]; taken {
			continue
		}
		g.byKey[loc.Name] = loc
		g.names = append(g.names, loc.Name)
		for _, alias := range loc.Aliases {
			if _, taken := g.byKey[alias]; !taken && alias != "" {
				g.byKey[alias] = loc
			}
		}
	}
	for k := range g.byKey {
		g.keys = append(g.keys, k)
	}
	sort.Strings(g.keys)
	sort.Strings(g.names)
	return g
}

// Len returns the number of distinct locations.
func (g *Gazetteer) Len() int { return len(g.names) }

// Names returns the canonical city names, sorted.
func (g *Gazetteer) Names() []string {
	return append([]string(nil), g.names...)
}

// Lookup resolves an exact name or alias.
func (g *Gazetteer) Lookup(name string) (Location, bool) {
	loc, ok := g.byKey[strings.TrimSpace(name)]
	return loc, ok
}

// Distance returns the distance in km between two named cities. ok is false
// when either name does not resolve.
func (g *Gazetteer) Distance(cityA, cityB string) (km int, ok bool) {
	a, okA := g.Lookup(cityA)
	b, okB := g.Lookup(cityB)
	if !okA || !okB {
		return 0, false
	}
	return DistanceKM(a, b), true
}

// SameCity reports whether both names resolve to the same location.
func (g *Gazetteer) SameCity(cityA, cityB string) bool {
	a, okA := g.Lookup(cityA)
	b, okB := g.Lookup(cityB)
	return okA && okB && a.Name == b.Name
}

// Search returns keys containing q, ignoring case and character width.
// Exact matches rank first, then prefix matches, then the rest in lexical
// order.
func (g *Gazetteer) Search(q string, limit int) []string {
	needle := foldKey(q)
	if needle == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	type hit struct {
		key  string
		rank int
	}
	var hits []hit
	for _, k := range g.keys {
		folded := foldKey(k)
		switch {
		case folded == needle:
			hits = append(hits, hit{k, 0})
		case strings.HasPrefix(folded, needle):
			hits = append(hits, hit{k, 1})
		case strings.Contains(folded, needle):
			hits = append(hits, hit{k, 2})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].key < hits[j].key
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.key
	}
	return out
}

func foldKey(s string) string {
	return cases.Fold().String(width.Fold.String(strings.TrimSpace(s)))
}
