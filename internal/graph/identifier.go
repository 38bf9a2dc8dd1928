package graph

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultTestCode is the type code reserved for acceptance test records.
const DefaultTestCode = "AT"

// ErrInvalidIdentifier is returned when an external identifier has fewer
// than three hyphen-delimited segments.
var ErrInvalidIdentifier = errors.New("invalid external identifier")

// ID is a parsed external identifier of the form <Module>-<TypeCode>-<Counter>.
type ID struct {
	Module   string
	TypeCode string
	Counter  string
}

func (id ID) String() string {
	return id.Module + "-" + id.TypeCode + "-" + id.Counter
}

// ParseID splits an external identifier. The counter is everything after the
// second hyphen and may itself contain hyphens.
func ParseID(raw string) (ID, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) < 3 {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}
	return ID{
		Module:   parts[0],
		TypeCode: parts[1],
		Counter:  strings.Join(parts[2:], "-"),
	}, nil
}

// Kind is the outcome of classifying a single identifier.
type Kind int

const (
	KindMalformed Kind = iota
	KindRequirement
	KindTest
)

func (k Kind) String() string {
	switch k {
	case KindRequirement:
		return "requirement"
	case KindTest:
		return "test"
	default:
		return "malformed"
	}
}

// Classifier decides which identifiers denote test records.
type Classifier struct {
	TestCode string
}

// NewClassifier returns a classifier for the given test type code,
// falling back to DefaultTestCode when code is blank.
func NewClassifier(code string) Classifier {
	code = strings.TrimSpace(code)
	if code == "" {
		code = DefaultTestCode
	}
	return Classifier{TestCode: code}
}

func (c Classifier) testCode() string {
	if c.TestCode == "" {
		return DefaultTestCode
	}
	return c.TestCode
}

// Classify reports whether raw is malformed, a test id, or some other
// (requirement-shaped) id. It does not check that the id exists.
func (c Classifier) Classify(raw string) Kind {
	id, err := ParseID(raw)
	if err != nil {
		return KindMalformed
	}
	if id.TypeCode == c.testCode() {
		return KindTest
	}
	return KindRequirement
}

// IsTest is the lenient predicate: malformed ids are simply not tests.
// Use Classify or ParseID when well-formedness matters.
func (c Classifier) IsTest(raw string) bool {
	return c.Classify(raw) == KindTest
}

// IsTestID classifies raw with the default test code.
func IsTestID(raw string) bool {
	return Classifier{}.IsTest(raw)
}
