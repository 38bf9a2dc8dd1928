package graph

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Graph is the traceability graph of one dataset snapshot.
// It is built once by Build and is read-only afterwards, so queries are safe
// to run from multiple goroutines.
type Graph struct {
	classifier Classifier

	order        []string
	requirements map[string]*Requirement
	testOrder    []string
	tests        map[string]*TestCase

	children    map[string][]string
	directTests map[string][]string
	broken      map[string][]string
	malformed   map[string][]string
	parents     map[string][]string

	duplicates []string
}

type buildOptions struct {
	testCode string
	strict   bool
	logger   *zap.Logger
}

// Option configures Build.
type Option func(*buildOptions)

// WithTestCode overrides the type code that marks test identifiers.
func WithTestCode(code string) Option {
	return func(o *buildOptions) { o.testCode = code }
}

// WithStrictIDs makes Build fail when any outgoing token is malformed.
func WithStrictIDs() Option {
	return func(o *buildOptions) { o.strict = true }
}

// WithLogger sets the logger used for build diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *buildOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Build indexes every requirement and test, then resolves each requirement's
// outgoing links against the complete id sets. Link resolution must not start
// before all entities are known, otherwise valid cross-references would be
// misclassified as broken.
func Build(reqs []Requirement, tests []TestCase, opts ...Option) (*Graph, error) {
	o := buildOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	g := &Graph{
		classifier:   NewClassifier(o.testCode),
		requirements: make(map[string]*Requirement, len(reqs)),
		tests:        make(map[string]*TestCase, len(tests)),
		children:     make(map[string][]string, len(reqs)),
		directTests:  make(map[string][]string, len(reqs)),
		broken:       make(map[string][]string),
		malformed:    make(map[string][]string),
		parents:      make(map[string][]string),
	}

	// 1. Index entities. Last record wins, first position is kept.
	for i := range reqs {
		r := cloneRequirement(reqs[i])
		if _, seen := g.requirements[r.ID]; seen {
			g.duplicates = append(g.duplicates, r.ID)
		} else {
			g.order = append(g.order, r.ID)
		}
		g.requirements[r.ID] = r
	}
	for i := range tests {
		t := tests[i]
		if _, seen := g.tests[t.ID]; !seen {
			g.testOrder = append(g.testOrder, t.ID)
		}
		g.tests[t.ID] = &t
	}

	// 2. Resolve links against the complete id set.
	var malformed []string
	for _, id := range g.order {
		links := g.classifier.ResolveLinks(g.requirements[id].Outgoing, g.Has)

		g.children[id] = nonNil(links.Children)
		g.directTests[id] = nonNil(links.Tests)
		if len(links.Broken) > 0 {
			g.broken[id] = links.Broken
			o.logger.Debug("broken links",
				zap.String("requirement", id),
				zap.Strings("targets", links.Broken))
		}
		if len(links.Malformed) > 0 {
			g.malformed[id] = links.Malformed
			for _, tok := range links.Malformed {
				malformed = append(malformed, id+" -> "+tok)
			}
		}
		for _, child := range links.Children {
			g.parents[child] = append(g.parents[child], id)
		}
	}

	if o.strict && len(malformed) > 0 {
		return nil, fmt.Errorf("%w in outgoing links: %s", ErrInvalidIdentifier, strings.Join(malformed, ", "))
	}

	return g, nil
}

func cloneRequirement(r Requirement) *Requirement {
	r.Incoming = append([]string(nil), r.Incoming...)
	r.Outgoing = append([]string(nil), r.Outgoing...)
	return &r
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func copyIDs(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Classifier returns the identifier classifier the graph was built with.
func (g *Graph) Classifier() Classifier {
	return g.classifier
}

// Has reports whether id is a known requirement.
func (g *Graph) Has(id string) bool {
	_, ok := g.requirements[id]
	return ok
}

// Len returns the number of distinct requirements.
func (g *Graph) Len() int {
	return len(g.order)
}

// Requirement looks up a requirement by id.
func (g *Graph) Requirement(id string) (Requirement, bool) {
	r, ok := g.requirements[id]
	if !ok {
		return Requirement{}, false
	}
	return *cloneRequirement(*r), true
}

// Requirements returns all requirements in load order.
func (g *Graph) Requirements() []Requirement {
	out := make([]Requirement, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *cloneRequirement(*g.requirements[id]))
	}
	return out
}

// Test looks up a test record by id.
func (g *Graph) Test(id string) (TestCase, bool) {
	t, ok := g.tests[id]
	if !ok {
		return TestCase{}, false
	}
	return *t, true
}

// Tests returns all test records in load order.
func (g *Graph) Tests() []TestCase {
	out := make([]TestCase, 0, len(g.testOrder))
	for _, id := range g.testOrder {
		out = append(out, *g.tests[id])
	}
	return out
}

// Children returns the resolved child requirement ids of id.
func (g *Graph) Children(id string) []string {
	return copyIDs(g.children[id])
}

// DirectTests returns the test ids linked directly from id.
func (g *Graph) DirectTests(id string) []string {
	return copyIDs(g.directTests[id])
}

// BrokenLinks returns the outgoing tokens of id that matched neither a test
// id nor a known requirement.
func (g *Graph) BrokenLinks(id string) []string {
	return copyIDs(g.broken[id])
}

// MalformedLinks returns the broken tokens of id that are not valid identifiers.
func (g *Graph) MalformedLinks(id string) []string {
	return copyIDs(g.malformed[id])
}

// Parents returns the requirements that list id as a child, in load order.
func (g *Graph) Parents(id string) []string {
	return copyIDs(g.parents[id])
}

// Duplicates returns requirement ids that appeared more than once in the input.
func (g *Graph) Duplicates() []string {
	return copyIDs(g.duplicates)
}
