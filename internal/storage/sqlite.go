package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"doorslight/internal/config"
	"doorslight/internal/graph"
	"doorslight/internal/index"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS modules (
			position INTEGER PRIMARY KEY,
			abbrev TEXT,
			name TEXT,
			level TEXT,
			requirements_module TEXT,
			tests_module TEXT,
			parent_abbrev TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS requirements (
			position INTEGER PRIMARY KEY,
			id TEXT,
			module TEXT,
			type_code TEXT,
			counter TEXT,
			heading TEXT,
			text TEXT,
			incoming JSON,
			outgoing JSON,
			source TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS tests (
			position INTEGER PRIMARY KEY,
			id TEXT,
			module TEXT,
			counter TEXT,
			text TEXT,
			result TEXT,
			notes TEXT,
			source TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_requirements_id ON requirements(id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveDataset replaces the whole snapshot in one transaction. Duplicate ids
// are kept as separate rows so a reload reproduces the input exactly.
func (s *SQLiteStore) SaveDataset(ctx context.Context, ds *index.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Clear previous snapshot
	for _, table := range []string{"meta", "modules", "requirements", "tests"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('project', ?)`, ds.Project); err != nil {
		return err
	}

	// 2. Save Modules
	modStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO modules (position, abbrev, name, level, requirements_module, tests_module, parent_abbrev)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer modStmt.Close()

	for i, m := range ds.Modules {
		if _, err := modStmt.ExecContext(ctx, i, m.Abbrev, m.Name, m.Level, m.RequirementsModule, m.TestsModule, m.ParentAbbrev); err != nil {
			return err
		}
	}

	// 3. Save Requirements
	reqStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO requirements (position, id, module, type_code, counter, heading, text, incoming, outgoing, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer reqStmt.Close()

	for i, r := range ds.Requirements {
		incoming, err := json.Marshal(r.Incoming)
		if err != nil {
			return err
		}
		outgoing, err := json.Marshal(r.Outgoing)
		if err != nil {
			return err
		}
		if _, err := reqStmt.ExecContext(ctx, i, r.ID, r.Module, r.TypeCode, r.Counter, r.Heading, r.Text, incoming, outgoing, r.Source); err != nil {
			return err
		}
	}

	// 4. Save Tests
	testStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tests (position, id, module, counter, text, result, notes, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer testStmt.Close()

	for i, t := range ds.Tests {
		if _, err := testStmt.ExecContext(ctx, i, t.ID, t.Module, t.Counter, t.Text, t.Result, t.Notes, t.Source); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadDataset(ctx context.Context) (*index.Dataset, error) {
	ds := &index.Dataset{}

	// 1. Load Meta
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'project'").Scan(&ds.Project)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query meta: %w", err)
	}

	// 2. Load Modules
	modRows, err := s.db.QueryContext(ctx, "SELECT abbrev, name, level, requirements_module, tests_module, parent_abbrev FROM modules ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}
	defer modRows.Close()

	for modRows.Next() {
		var m config.ModuleInfo
		if err := modRows.Scan(&m.Abbrev, &m.Name, &m.Level, &m.RequirementsModule, &m.TestsModule, &m.ParentAbbrev); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		ds.Modules = append(ds.Modules, m)
	}
	if err := modRows.Err(); err != nil {
		return nil, err
	}

	// 3. Load Requirements
	reqRows, err := s.db.QueryContext(ctx, "SELECT "+requirementColumns+" FROM requirements ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query requirements: %w", err)
	}
	defer reqRows.Close()

	for reqRows.Next() {
		r, err := scanRequirement(reqRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		ds.Requirements = append(ds.Requirements, r)
	}
	if err := reqRows.Err(); err != nil {
		return nil, err
	}

	// 4. Load Tests
	testRows, err := s.db.QueryContext(ctx, "SELECT id, module, counter, text, result, notes, source FROM tests ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query tests: %w", err)
	}
	defer testRows.Close()

	for testRows.Next() {
		var t graph.TestCase
		if err := testRows.Scan(&t.ID, &t.Module, &t.Counter, &t.Text, &t.Result, &t.Notes, &t.Source); err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}
		ds.Tests = append(ds.Tests, t)
	}
	if err := testRows.Err(); err != nil {
		return nil, err
	}

	return ds, nil
}

// GetRequirement returns the last stored record with the given id, matching
// the last-wins rule used when the graph is built.
func (s *SQLiteStore) GetRequirement(ctx context.Context, id string) (graph.Requirement, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+requirementColumns+" FROM requirements WHERE id = ? ORDER BY position DESC LIMIT 1", id)
	r, err := scanRequirement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Requirement{}, fmt.Errorf("requirement %s: %w", id, ErrNotFound)
	}
	return r, err
}

const requirementColumns = "id, module, type_code, counter, heading, text, incoming, outgoing, source"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequirement(row rowScanner) (graph.Requirement, error) {
	var r graph.Requirement
	var incoming, outgoing []byte
	if err := row.Scan(&r.ID, &r.Module, &r.TypeCode, &r.Counter, &r.Heading, &r.Text, &incoming, &outgoing, &r.Source); err != nil {
		return graph.Requirement{}, err
	}
	if err := json.Unmarshal(incoming, &r.Incoming); err != nil {
		return graph.Requirement{}, fmt.Errorf("incoming links of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(outgoing, &r.Outgoing); err != nil {
		return graph.Requirement{}, fmt.Errorf("outgoing links of %s: %w", r.ID, err)
	}
	return r, nil
}
