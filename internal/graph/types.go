package graph

// Requirement is a single requirement record as exported from DOORS.
// It is immutable once loaded; Outgoing holds the raw, unclassified link tokens.
type Requirement struct {
	ID       string   `json:"id"`
	Module   string   `json:"module"`
	TypeCode string   `json:"type_code"`
	Counter  string   `json:"counter"`
	Heading  string   `json:"heading"`
	Text     string   `json:"text"`
	Incoming []string `json:"incoming,omitempty"` // informational only, never traversed
	Outgoing []string `json:"outgoing,omitempty"`
	Source   string   `json:"source,omitempty"` // file the record was read from
}

// TestCase is an acceptance test record.
type TestCase struct {
	ID      string `json:"id"`
	Module  string `json:"module"`
	Counter string `json:"counter"`
	Text    string `json:"text"`
	Result  string `json:"result"`
	Notes   string `json:"notes,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Links is the classified form of a requirement's outgoing tokens.
// Order always matches the input order; nothing is deduplicated.
type Links struct {
	Children  []string
	Tests     []string
	Broken    []string
	Malformed []string // subset of Broken that failed to parse as an identifier
}
