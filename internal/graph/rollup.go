package graph

import (
	"encoding/json"
	"sort"
	"strings"
)

// Category is a normalized test outcome.
type Category int

const (
	CategoryPass Category = iota
	CategoryFail
	CategoryPartial
	CategoryNotRun
	CategoryMissing

	numCategories
)

var categoryNames = [numCategories]string{
	CategoryPass:    "Pass",
	CategoryFail:    "Fail",
	CategoryPartial: "Partial",
	CategoryNotRun:  "Not Run",
	CategoryMissing: "Missing",
}

func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return "Unknown"
	}
	return categoryNames[c]
}

// ParseCategory maps a recorded test result to a fixed category. The trimmed
// result must match a category name exactly; blank results are Not Run.
// ok is false for anything else, including other spellings of a category.
func ParseCategory(result string) (c Category, ok bool) {
	norm := strings.TrimSpace(result)
	if norm == "" {
		return CategoryNotRun, true
	}
	for c := Category(0); c < numCategories; c++ {
		if categoryNames[c] == norm {
			return c, true
		}
	}
	return 0, false
}

// Status is the single summary label of a rollup.
type Status string

const (
	StatusNoTests   Status = "No Tests"
	StatusAnyFail   Status = "Any Fail"
	StatusPartial   Status = "Partial"
	StatusHasNotRun Status = "Has Not Run"
	StatusAllPass   Status = "All Pass"
	StatusMixed     Status = "Mixed"
)

// Tally counts test outcomes. Results outside the fixed categories are kept
// verbatim in Other, so Other never holds a fixed category name.
type Tally struct {
	counts [numCategories]int
	Other  map[string]int
}

// Add records one outcome for a raw result string.
func (t *Tally) Add(result string) {
	if c, ok := ParseCategory(result); ok {
		t.counts[c]++
		return
	}
	if t.Other == nil {
		t.Other = make(map[string]int)
	}
	t.Other[strings.TrimSpace(result)]++
}

// AddCategory records one outcome of a fixed category.
func (t *Tally) AddCategory(c Category) {
	if c >= 0 && c < numCategories {
		t.counts[c]++
	}
}

// Count returns the number of outcomes recorded under c.
func (t Tally) Count(c Category) int {
	if c < 0 || c >= numCategories {
		return 0
	}
	return t.counts[c]
}

// Total returns the number of recorded outcomes.
func (t Tally) Total() int {
	n := 0
	for _, v := range t.counts {
		n += v
	}
	for _, v := range t.Other {
		n += v
	}
	return n
}

// CountEntry is one non-zero bucket of a tally.
type CountEntry struct {
	Label string
	Count int
}

// Entries lists non-zero buckets: fixed categories first in declaration
// order, then other results sorted by label.
func (t Tally) Entries() []CountEntry {
	var out []CountEntry
	for c := Category(0); c < numCategories; c++ {
		if n := t.counts[c]; n > 0 {
			out = append(out, CountEntry{Label: c.String(), Count: n})
		}
	}
	other := make([]string, 0, len(t.Other))
	for k := range t.Other {
		other = append(other, k)
	}
	sort.Strings(other)
	for _, k := range other {
		out = append(out, CountEntry{Label: k, Count: t.Other[k]})
	}
	return out
}

// Map flattens the tally into label -> count, omitting zero buckets.
func (t Tally) Map() map[string]int {
	out := make(map[string]int)
	for _, e := range t.Entries() {
		out[e.Label] += e.Count
	}
	return out
}

func (t Tally) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Map())
}

// precedence is evaluated top to bottom; the first matching rule wins.
var precedence = []struct {
	status Status
	match  func(Tally) bool
}{
	{StatusNoTests, func(t Tally) bool { return t.Total() == 0 }},
	{StatusAnyFail, func(t Tally) bool { return t.Count(CategoryFail) > 0 }},
	{StatusPartial, func(t Tally) bool { return t.Count(CategoryPartial) > 0 }},
	{StatusHasNotRun, func(t Tally) bool {
		return t.Count(CategoryNotRun) > 0 || t.Count(CategoryMissing) > 0
	}},
	{StatusAllPass, func(t Tally) bool { return t.Count(CategoryPass) == t.Total() }},
}

// SummarizeTally reduces a tally to one label.
func SummarizeTally(t Tally) Status {
	for _, rule := range precedence {
		if rule.match(t) {
			return rule.status
		}
	}
	return StatusMixed
}

// Rollup is the consolidated test status of a requirement and its descendants.
type Rollup struct {
	Label   Status   `json:"label"`
	Counts  Tally    `json:"counts"`
	TestIDs []string `json:"test_ids"`
}

// Rollup gathers the direct tests of id and of every descendant, keeping
// duplicates, and summarizes their recorded results. Test ids without a
// record count as Missing.
func (g *Graph) Rollup(id string) Rollup {
	ids := copyIDs(g.directTests[id])
	for _, d := range g.Descendants(id) {
		ids = append(ids, g.directTests[d]...)
	}

	var tally Tally
	for _, tid := range ids {
		tc, ok := g.tests[tid]
		if !ok {
			tally.AddCategory(CategoryMissing)
			continue
		}
		tally.Add(tc.Result)
	}

	return Rollup{
		Label:   SummarizeTally(tally),
		Counts:  tally,
		TestIDs: ids,
	}
}
