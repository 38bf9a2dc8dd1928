package crawler

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"doorslight/internal/graph"
)

// Column names used by DOORS module exports.
const (
	ColExternalID = "ExternalID"
	ColHeading    = "Heading"
	ColObjectText = "ObjectText"
	ColIncoming   = "IncomingLinks"
	ColOutgoing   = "OutgoingLinks"
	ColTestResult = "TestResult"
	ColAdditional = "Additional Information"
	defaultNotRun = "Not Run"
)

// Row is one CSV record keyed by trimmed header name.
type Row struct {
	File   string
	Line   int
	Values map[string]string
}

// Get returns the trimmed cell for column, and whether the column exists.
func (r Row) Get(column string) (string, bool) {
	v, ok := r.Values[column]
	return v, ok
}

func (r Row) value(column string) string {
	return r.Values[column]
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadRows parses a CSV file with a header line. Headers and cells are
// trimmed; short rows get empty cells for the missing columns.
func ReadRows(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		line, _ := r.FieldPos(0)
		values := make(map[string]string, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(rec) {
				values[h] = strings.TrimSpace(rec[i])
			} else {
				values[h] = ""
			}
		}
		rows = append(rows, Row{File: path, Line: line, Values: values})
	}
	return rows, nil
}

// SplitLinks splits a link cell on semicolons, commas and whitespace.
func SplitLinks(raw string) []string {
	out := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == ',' || unicode.IsSpace(r)
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// RequirementFromRow converts a requirements.csv row. ok is false for rows
// without an ExternalID. A malformed ExternalID is an error.
func RequirementFromRow(row Row) (graph.Requirement, bool, error) {
	eid := row.value(ColExternalID)
	if eid == "" {
		return graph.Requirement{}, false, nil
	}
	id, err := graph.ParseID(eid)
	if err != nil {
		return graph.Requirement{}, false, fmt.Errorf("%s:%d: %w", row.File, row.Line, err)
	}
	return graph.Requirement{
		ID:       eid,
		Module:   id.Module,
		TypeCode: id.TypeCode,
		Counter:  id.Counter,
		Heading:  row.value(ColHeading),
		Text:     row.value(ColObjectText),
		Incoming: SplitLinks(row.value(ColIncoming)),
		Outgoing: SplitLinks(row.value(ColOutgoing)),
		Source:   row.File,
	}, true, nil
}

// TestFromRow converts a tests.csv row. Rows without an ExternalID and rows
// whose type code is not the test code are skipped.
func TestFromRow(row Row, classifier graph.Classifier) (graph.TestCase, bool, error) {
	eid := row.value(ColExternalID)
	if eid == "" {
		return graph.TestCase{}, false, nil
	}
	id, err := graph.ParseID(eid)
	if err != nil {
		return graph.TestCase{}, false, fmt.Errorf("%s:%d: %w", row.File, row.Line, err)
	}
	if !classifier.IsTest(eid) {
		return graph.TestCase{}, false, nil
	}

	result, ok := row.Get(ColTestResult)
	if !ok {
		result = defaultNotRun
	}
	return graph.TestCase{
		ID:      eid,
		Module:  id.Module,
		Counter: id.Counter,
		Text:    row.value(ColObjectText),
		Result:  result,
		Notes:   row.value(ColAdditional),
		Source:  row.File,
	}, true, nil
}
