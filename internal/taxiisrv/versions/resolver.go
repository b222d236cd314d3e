package versions

import (
	"sort"
	"time"
)

// Pair identifies one version of one object.
type Pair struct {
	ID      string
	Version time.Time
}

// Plan is the normalised form of a selector list. When All is set the other fields are
// irrelevant.
type Plan struct {
	All   bool
	First bool
	Last  bool
	Exact []time.Time
}

// Plan normalises the selectors. An empty list resolves to last.
func (s Selectors) Plan() Plan {
	if len(s) == 0 {
		return Plan{Last: true}
	}
	var p Plan
	for _, sel := range s {
		switch sel.kind {
		case KindAll:
			return Plan{All: true}
		case KindFirst:
			p.First = true
		case KindLast:
			p.Last = true
		case KindExact:
			if !containsTime(p.Exact, sel.at) {
				p.Exact = append(p.Exact, sel.at)
			}
		}
	}
	return p
}

// Resolve returns the pairs selected by the plan, sorted by id then version, without
// duplicates.
func (p Plan) Resolve(pairs []Pair) []Pair {
	byID := make(map[string][]time.Time)
	for _, pair := range pairs {
		byID[pair.ID] = append(byID[pair.ID], pair.Version)
	}

	var out []Pair
	for id, versions := range byID {
		sort.Slice(versions, func(i, j int) bool { return versions[i].Before(versions[j]) })
		versions = dedupe(versions)

		var picked []time.Time
		if p.All {
			picked = versions
		} else {
			if p.First {
				picked = append(picked, versions[0])
			}
			if p.Last {
				picked = append(picked, versions[len(versions)-1])
			}
			for _, v := range versions {
				if containsTime(p.Exact, v) {
					picked = append(picked, v)
				}
			}
		}
		sort.Slice(picked, func(i, j int) bool { return picked[i].Before(picked[j]) })
		for _, v := range dedupe(picked) {
			out = append(out, Pair{ID: id, Version: v})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Version.Before(out[j].Version)
	})
	return out
}

func containsTime(list []time.Time, t time.Time) bool {
	for _, v := range list {
		if v.Equal(t) {
			return true
		}
	}
	return false
}

// dedupe drops adjacent equal timestamps from a sorted slice.
func dedupe(sorted []time.Time) []time.Time {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if !v.Equal(out[len(out)-1]) {
			out = append(out, v)
		}
	}
	return out
}
