package analysis

import (
	"sort"

	"doorslight/internal/graph"
)

// BrokenLink is an outgoing token that resolved to neither a requirement nor a test.
type BrokenLink struct {
	From      string `json:"from"`
	Target    string `json:"target"`
	Malformed bool   `json:"malformed,omitempty"`
}

// MissingTest is a test link whose record does not exist.
type MissingTest struct {
	From   string `json:"from"`
	TestID string `json:"test_id"`
}

// Report summarizes consistency problems of one snapshot.
// The graph itself never fails on these; they are surfaced here as data.
type Report struct {
	Requirements int           `json:"requirements"`
	Tests        int           `json:"tests"`
	BrokenLinks  []BrokenLink  `json:"broken_links"`
	MissingTests []MissingTest `json:"missing_tests"`
	Cycles       []string      `json:"cycles"`
	Orphans      []string      `json:"orphans"`
	Duplicates   []string      `json:"duplicates"`
	Untested     []string      `json:"untested"`
}

// Findings counts problems that indicate an inconsistent dataset.
// Untested requirements are informational and not counted.
func (r *Report) Findings() int {
	return len(r.BrokenLinks) + len(r.MissingTests) + len(r.Cycles) + len(r.Orphans) + len(r.Duplicates)
}

// Analyzer inspects a built graph.
type Analyzer struct {
	g *graph.Graph
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(g *graph.Graph) *Analyzer {
	return &Analyzer{g: g}
}

// Check walks every requirement once. Results follow load order, so two runs
// over the same snapshot produce identical reports.
func (a *Analyzer) Check() *Report {
	report := &Report{
		Requirements: a.g.Len(),
		Tests:        len(a.g.Tests()),
		BrokenLinks:  []BrokenLink{},
		MissingTests: []MissingTest{},
		Cycles:       []string{},
		Orphans:      []string{},
		Duplicates:   a.g.Duplicates(),
		Untested:     []string{},
	}

	for _, r := range a.g.Requirements() {
		id := r.ID

		malformed := make(map[string]bool)
		for _, tok := range a.g.MalformedLinks(id) {
			malformed[tok] = true
		}
		for _, tok := range a.g.BrokenLinks(id) {
			report.BrokenLinks = append(report.BrokenLinks, BrokenLink{From: id, Target: tok, Malformed: malformed[tok]})
		}

		seenMissing := make(map[string]bool)
		direct := a.g.DirectTests(id)
		for _, tid := range direct {
			if _, ok := a.g.Test(tid); ok || seenMissing[tid] {
				continue
			}
			seenMissing[tid] = true
			report.MissingTests = append(report.MissingTests, MissingTest{From: id, TestID: tid})
		}

		if a.g.InCycle(id) {
			report.Cycles = append(report.Cycles, id)
		}

		children := a.g.Children(id)
		if len(a.g.Parents(id)) == 0 && len(children) == 0 && len(direct) == 0 {
			report.Orphans = append(report.Orphans, id)
		}

		if a.g.Rollup(id).Label == graph.StatusNoTests {
			report.Untested = append(report.Untested, id)
		}
	}

	sort.Strings(report.Duplicates)
	return report
}

// Check is shorthand for NewAnalyzer(g).Check().
func Check(g *graph.Graph) *Report {
	return NewAnalyzer(g).Check()
}
