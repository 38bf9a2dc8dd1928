package graph

import (
	"fmt"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// randomGraph builds n requirements R-SRS-0..n-1 whose outgoing links are
// taken from edges (pairs of indices, modulo n). Links may form cycles.
func randomGraph(n int, edges []int) []Requirement {
	reqs := make([]Requirement, n)
	for i := range reqs {
		reqs[i] = req(fmt.Sprintf("R-SRS-%d", i))
	}
	for i := 0; i+1 < len(edges); i += 2 {
		from, to := edges[i]%n, edges[i+1]%n
		reqs[from].Outgoing = append(reqs[from].Outgoing, reqs[to].ID)
	}
	return reqs
}

func TestDescendantsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a requirement is never its own descendant", prop.ForAll(
		func(n int, edges []int) bool {
			g, err := Build(randomGraph(n, edges), nil)
			if err != nil {
				return false
			}
			for _, r := range g.Requirements() {
				for _, d := range g.Descendants(r.ID) {
					if d == r.ID {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.SliceOf(gen.IntRange(0, 11)),
	))

	properties.Property("descendants are distinct and bounded by graph size", prop.ForAll(
		func(n int, edges []int) bool {
			g, err := Build(randomGraph(n, edges), nil)
			if err != nil {
				return false
			}
			for _, r := range g.Requirements() {
				seen := map[string]bool{}
				for _, d := range g.Descendants(r.ID) {
					if seen[d] {
						return false
					}
					seen[d] = true
				}
				if len(seen) > n-1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.SliceOf(gen.IntRange(0, 11)),
	))

	properties.Property("descendants equal the reachable set of the generated edges", prop.ForAll(
		func(n int, edges []int) bool {
			g, err := Build(randomGraph(n, edges), nil)
			if err != nil {
				return false
			}
			reach := closure(n, edges)
			for i := 0; i < n; i++ {
				want := map[string]bool{}
				for j := 0; j < n; j++ {
					if reach[i][j] && j != i {
						want[fmt.Sprintf("R-SRS-%d", j)] = true
					}
				}
				got := g.Descendants(fmt.Sprintf("R-SRS-%d", i))
				if len(got) != len(want) {
					return false
				}
				for _, d := range got {
					if !want[d] {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.SliceOf(gen.IntRange(0, 11)),
	))

	properties.TestingRun(t)
}

// closure is the transitive closure of the edge pairs as an n×n matrix,
// computed independently of the graph package.
func closure(n int, edges []int) [][]bool {
	reach := make([][]bool, n)
	for i := range reach {
		reach[i] = make([]bool, n)
	}
	for i := 0; i+1 < len(edges); i += 2 {
		reach[edges[i]%n][edges[i+1]%n] = true
	}
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if reach[i][k] && reach[k][j] {
					reach[i][j] = true
				}
			}
		}
	}
	return reach
}

func TestLinkOrderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	pool := []string{"SYS-SRS-002", "SYS-SRS-003", "SYS-AT-001", "SYS-AT-002", "SYS-SRS-999", "BAD"}

	properties.Property("reordering outgoing tokens keeps adjacency sets", prop.ForAll(
		func(picks []int, seed int) bool {
			tokens := make([]string, 0, len(picks))
			for _, p := range picks {
				tokens = append(tokens, pool[p%len(pool)])
			}
			shuffled := append([]string(nil), tokens...)
			rotate(shuffled, seed)

			build := func(out []string) *Graph {
				g, _ := Build([]Requirement{
					req("SYS-SRS-001", out...),
					req("SYS-SRS-002"),
					req("SYS-SRS-003"),
				}, nil)
				return g
			}
			a, b := build(tokens), build(shuffled)
			return sameMultiset(a.Children("SYS-SRS-001"), b.Children("SYS-SRS-001")) &&
				sameMultiset(a.DirectTests("SYS-SRS-001"), b.DirectTests("SYS-SRS-001")) &&
				sameMultiset(a.BrokenLinks("SYS-SRS-001"), b.BrokenLinks("SYS-SRS-001"))
		},
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

func rotate(s []string, k int) {
	if len(s) == 0 {
		return
	}
	k %= len(s)
	tmp := append(append([]string(nil), s[k:]...), s[:k]...)
	for i := 0; i < len(tmp)/2; i++ {
		tmp[i], tmp[len(tmp)-1-i] = tmp[len(tmp)-1-i], tmp[i]
	}
	copy(s, tmp)
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
