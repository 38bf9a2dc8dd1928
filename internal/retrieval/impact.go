package retrieval

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"

	"doorslight/internal/crawler"
	"doorslight/internal/git"
	"doorslight/internal/graph"
)

// Config controls how far impact is followed up the link graph.
type Config struct {
	// MaxHops limits how many parent levels above a changed record are
	// reported. Zero means no limit.
	MaxHops int
}

func DefaultConfig() Config {
	return Config{MaxHops: 0}
}

// Impact is the set of requirements whose rollup may differ after a change.
type Impact struct {
	MaxHops             int            `json:"max_hops"`
	ChangedRequirements []string       `json:"changed_requirements"`
	ChangedTests        []string       `json:"changed_tests"`
	Unresolved          []string       `json:"unresolved,omitempty"`
	RemovedFiles        []string       `json:"removed_files,omitempty"`
	Affected            []string       `json:"affected"`
	Depth               map[string]int `json:"depth"`
}

// ChangedIDs maps changed diff lines back to the ExternalIDs of the CSV
// records containing them. A record spans from its first line up to the line
// before the next record, so edits inside multi-line cells are attributed
// to the right row. Files that no longer exist are returned in removed.
// Only the current tree is read: lines of a deleted row are credited to the
// record that now holds them.
func ChangedIDs(root string, changes []git.ChangedFile) (ids, removed []string, err error) {
	seen := make(map[string]bool)
	for _, ch := range changes {
		if ch.Deleted {
			removed = append(removed, ch.Path)
			continue
		}
		rows, err := crawler.ReadRows(filepath.Join(root, filepath.FromSlash(ch.Path)))
		if errors.Is(err, fs.ErrNotExist) {
			removed = append(removed, ch.Path)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		for i, row := range rows {
			id, _ := row.Get(crawler.ColExternalID)
			if id == "" || seen[id] {
				continue
			}
			end := -1
			if i+1 < len(rows) {
				end = rows[i+1].Line - 1
			}
			if touches(row.Line, end, ch.ChangedLines) {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, removed, nil
}

// touches reports whether any changed line falls in [start, end]. end < 0
// means the range runs to the end of the file.
func touches(start, end int, changed []int) bool {
	for _, line := range changed {
		if line >= start && (end < 0 || line <= end) {
			return true
		}
	}
	return false
}

// ExtractImpact seeds the changed requirements and the requirements that
// link a changed test, then walks parents breadth first. Every reported id
// carries the hop count at which it was first reached.
func ExtractImpact(g *graph.Graph, changedIDs []string, cfg Config) *Impact {
	imp := &Impact{
		MaxHops:             cfg.MaxHops,
		ChangedRequirements: []string{},
		ChangedTests:        []string{},
		Affected:            []string{},
		Depth:               map[string]int{},
	}
	if g == nil {
		return imp
	}

	classifier := g.Classifier()
	testLinks := make(map[string][]string)
	for _, r := range g.Requirements() {
		for _, tid := range g.DirectTests(r.ID) {
			testLinks[tid] = append(testLinks[tid], r.ID)
		}
	}

	var queue []queueItem
	seed := func(id string) {
		if _, ok := imp.Depth[id]; ok {
			return
		}
		imp.Depth[id] = 0
		queue = append(queue, queueItem{id: id, depth: 0})
	}
	for _, id := range changedIDs {
		switch {
		case g.Has(id):
			imp.ChangedRequirements = append(imp.ChangedRequirements, id)
			seed(id)
		case classifier.IsTest(id):
			imp.ChangedTests = append(imp.ChangedTests, id)
			for _, owner := range testLinks[id] {
				seed(owner)
			}
		default:
			imp.Unresolved = append(imp.Unresolved, id)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cfg.MaxHops > 0 && cur.depth >= cfg.MaxHops {
			continue
		}
		for _, parent := range g.Parents(cur.id) {
			if _, ok := imp.Depth[parent]; ok {
				continue
			}
			imp.Depth[parent] = cur.depth + 1
			queue = append(queue, queueItem{id: parent, depth: cur.depth + 1})
		}
	}

	for id := range imp.Depth {
		imp.Affected = append(imp.Affected, id)
	}
	sort.Slice(imp.Affected, func(i, j int) bool {
		di, dj := imp.Depth[imp.Affected[i]], imp.Depth[imp.Affected[j]]
		if di != dj {
			return di < dj
		}
		return imp.Affected[i] < imp.Affected[j]
	})
	sort.Strings(imp.ChangedRequirements)
	sort.Strings(imp.ChangedTests)
	return imp
}

type queueItem struct {
	id    string
	depth int
}
