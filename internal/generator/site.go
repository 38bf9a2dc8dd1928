package generator

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"doorslight/internal/analysis"
	"doorslight/internal/config"
	"doorslight/internal/graph"
	"doorslight/internal/index"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets/style.css assets/app.js
var assetFS embed.FS

var pageNames = []string{
	"index.html",
	"level.html",
	"requirement.html",
	"edit_index.html",
	"edit_module.html",
}

// SiteGenerator renders a project into a static HTML site.
type SiteGenerator struct {
	project  *index.Project
	graph    *graph.Graph
	modules  []config.ModuleInfo
	workers  int
	truncate int
	logger   *zap.Logger
	mermaid  *MermaidGenerator
	pages    map[string]*template.Template
	levels   []levelLink
}

type Option func(*SiteGenerator)

// WithWorkers bounds how many requirement pages render at once.
func WithWorkers(n int) Option {
	return func(s *SiteGenerator) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTruncate sets the rune limit for text shown in tables.
func WithTruncate(n int) Option {
	return func(s *SiteGenerator) {
		if n > 0 {
			s.truncate = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *SiteGenerator) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSiteGenerator(p *index.Project, opts ...Option) (*SiteGenerator, error) {
	if p == nil || p.Graph == nil {
		return nil, fmt.Errorf("project has no graph")
	}
	s := &SiteGenerator{
		project:  p,
		graph:    p.Graph,
		workers:  8,
		truncate: 200,
		logger:   zap.NewNop(),
		mermaid:  NewMermaidGenerator(),
		pages:    make(map[string]*template.Template, len(pageNames)),
	}
	if p.Hierarchy != nil {
		s.modules = p.Hierarchy.Modules
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		s.pages[name] = t
	}
	for _, lvl := range config.Levels {
		s.levels = append(s.levels, levelLink{Name: lvl, Lower: strings.ToLower(lvl), URL: LevelURL(lvl)})
	}
	return s, nil
}

type levelLink struct {
	Name  string
	Lower string
	URL   string
}

// page is the data every template receives. Root is the relative prefix
// from the page back to the site root.
type page struct {
	Title   string
	Project string
	Root    string
	Levels  []levelLink
	Body    any
}

type reqLink struct {
	ID  string
	URL string
}

// GenerateSite writes the full site and pipeline_report.json under outDir.
// The report is written even when a stage fails.
func (s *SiteGenerator) GenerateSite(ctx context.Context, outDir string) (retErr error) {
	report := NewPipelineReport(s.project.Name, outDir)
	reportPath := filepath.Join(outDir, "pipeline_report.json")
	defer func() {
		if retErr != nil {
			report.AddSignal(Signal{Code: "site_generate_failed", Stage: "generator", Severity: SeverityCritical, Message: retErr.Error()})
		}
		if err := report.Save(reportPath); err != nil {
			s.logger.Warn("failed to write pipeline report", zap.Error(err))
		}
	}()

	err := report.RunStage("init_output_dir", func(rec *StageRecorder) error {
		for _, dir := range []string{outDir, filepath.Join(outDir, "levels"), filepath.Join(outDir, "requirements"), filepath.Join(outDir, "edit")} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		return s.writeAssets(outDir)
	})
	if err != nil {
		return err
	}

	var findings *analysis.Report
	_ = report.RunStage("analysis", func(rec *StageRecorder) error {
		findings = analysis.Check(s.graph)
		rec.Count("requirements", findings.Requirements)
		rec.Count("tests", findings.Tests)
		rec.Count("broken_links", len(findings.BrokenLinks))
		rec.Count("missing_tests", len(findings.MissingTests))
		rec.Count("cycles", len(findings.Cycles))
		for _, b := range findings.BrokenLinks {
			rec.Note("unresolved target %s", b.Target)
		}
		for _, m := range findings.MissingTests {
			rec.Note("test without record %s", m.TestID)
		}
		s.addSignals(report, findings)
		return nil
	})

	reqs := s.sortedRequirements()

	err = report.RunStage("overview", func(rec *StageRecorder) error {
		if err := s.writeIndex(outDir, reqs, findings); err != nil {
			return err
		}
		rec.Pages(1)
		return nil
	})
	if err != nil {
		return err
	}

	err = report.RunStage("levels", func(rec *StageRecorder) error {
		for _, lvl := range s.levels {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows, err := s.writeLevel(outDir, lvl, reqs)
			if err != nil {
				return err
			}
			rec.Pages(1)
			rec.Count(lvl.Lower, rows)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = report.RunStage("requirements", func(rec *StageRecorder) error {
		rec.Count("workers", s.workers)
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(s.workers)
		for _, r := range reqs {
			r := r
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				if err := s.writeRequirement(outDir, r, rec); err != nil {
					return err
				}
				rec.Pages(1)
				return nil
			})
		}
		return eg.Wait()
	})
	if err != nil {
		return err
	}

	err = report.RunStage("edit", func(rec *StageRecorder) error {
		modules := s.editModules(reqs)
		if err := s.writeEdit(outDir, modules); err != nil {
			return err
		}
		rec.Pages(len(modules) + 1)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("site generated",
		zap.String("out", outDir),
		zap.Int("requirements", len(reqs)),
		zap.Int("findings", findings.Findings()))
	return nil
}

func (s *SiteGenerator) addSignals(report *PipelineReport, r *analysis.Report) {
	for _, b := range r.BrokenLinks {
		kind := "unknown target"
		if b.Malformed {
			kind = "malformed identifier"
		}
		report.AddSignal(Signal{Code: "broken_link", Stage: "analysis", Severity: SeverityWarning, Subject: b.From,
			Message: fmt.Sprintf("%s links to %s (%s)", b.From, b.Target, kind)})
	}
	for _, m := range r.MissingTests {
		report.AddSignal(Signal{Code: "missing_test", Stage: "analysis", Severity: SeverityWarning, Subject: m.From,
			Message: fmt.Sprintf("%s links to test %s which has no record", m.From, m.TestID)})
	}
	for _, id := range r.Cycles {
		report.AddSignal(Signal{Code: "link_cycle", Stage: "analysis", Severity: SeverityInfo, Subject: id,
			Message: id + " is on a link cycle"})
	}
	for _, id := range r.Duplicates {
		report.AddSignal(Signal{Code: "duplicate_id", Stage: "analysis", Severity: SeverityWarning, Subject: id,
			Message: id + " appears more than once; the last record was kept"})
	}
}

func (s *SiteGenerator) writeAssets(outDir string) error {
	return fs.WalkDir(assetFS, "assets", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := assetFS.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(outDir, d.Name()), data, 0644)
	})
}

func (s *SiteGenerator) render(outDir, rel, tmpl string, p page) error {
	t, ok := s.pages[tmpl]
	if !ok {
		return fmt.Errorf("unknown template %s", tmpl)
	}
	p.Project = s.project.Name
	p.Levels = s.levels

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, tmpl, p); err != nil {
		return fmt.Errorf("failed to render %s: %w", rel, err)
	}
	if err := os.WriteFile(filepath.Join(outDir, filepath.FromSlash(rel)), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}

func (s *SiteGenerator) sortedRequirements() []graph.Requirement {
	reqs := s.graph.Requirements()
	sort.SliceStable(reqs, func(i, j int) bool { return lessRequirement(reqs[i], reqs[j]) })
	return reqs
}

type moduleCard struct {
	Abbrev  string
	Name    string
	Level   string
	EditURL string
}

func (s *SiteGenerator) writeIndex(outDir string, reqs []graph.Requirement, r *analysis.Report) error {
	body := struct {
		Modules      []moduleCard
		Requirements int
		Tests        int
		Broken       int
	}{
		Requirements: len(reqs),
		Tests:        r.Tests,
		Broken:       len(r.BrokenLinks),
	}
	for _, m := range s.modules {
		body.Modules = append(body.Modules, moduleCard{
			Abbrev:  m.Abbrev,
			Name:    m.Name,
			Level:   m.Level,
			EditURL: ModuleEditURL(m.Abbrev),
		})
	}
	return s.render(outDir, "index.html", "index.html", page{Title: "Home", Body: body})
}

type levelRow struct {
	Self     reqLink
	Heading  string
	Text     string
	Incoming []reqLink
	Children []reqLink
	Tests    []string
	Badge    Badge
}

func (s *SiteGenerator) writeLevel(outDir string, lvl levelLink, reqs []graph.Requirement) (int, error) {
	const root = "../"
	inLevel := make(map[string]bool)
	for _, m := range s.modules {
		if m.Level == lvl.Name {
			inLevel[m.Abbrev] = true
		}
	}

	rows := []levelRow{}
	for _, r := range reqs {
		if !inLevel[r.Module] {
			continue
		}
		row := levelRow{
			Self:     s.link(root, r.ID),
			Heading:  r.Heading,
			Text:     Truncate(r.Text, s.truncate),
			Tests:    s.graph.DirectTests(r.ID),
			Badge:    StatusBadge(s.graph.Rollup(r.ID).Label),
			Incoming: []reqLink{},
			Children: []reqLink{},
		}
		for _, in := range r.Incoming {
			if s.graph.Has(in) {
				row.Incoming = append(row.Incoming, s.link(root, in))
			}
		}
		for _, c := range s.graph.Children(r.ID) {
			row.Children = append(row.Children, s.link(root, c))
		}
		rows = append(rows, row)
	}

	body := struct {
		Level string
		Rows  []levelRow
	}{Level: lvl.Name, Rows: rows}
	return len(rows), s.render(outDir, lvl.URL, "level.html", page{Title: lvl.Name, Root: root, Body: body})
}

type relatedRow struct {
	ID      string
	URL     string
	Heading string
	Text    string
	Broken  bool
}

type directTestRow struct {
	ID      string
	Missing bool
	Badge   Badge
	Text    string
	Notes   string
}

type requirementBody struct {
	ID          string
	Heading     string
	Text        template.HTML
	Badge       Badge
	Counts      []graph.CountEntry
	AllTests    []string
	Incoming    []relatedRow
	Outgoing    []relatedRow
	DirectTests []directTestRow
	Diagram     string
}

func (s *SiteGenerator) writeRequirement(outDir string, r graph.Requirement, rec *StageRecorder) error {
	const root = "../"
	rollup := s.graph.Rollup(r.ID)
	diagram, truncated := s.mermaid.GenerateTraceTree(s.graph, r.ID)
	if diagram != "" {
		rec.Count("diagrams", 1)
	}
	if truncated {
		rec.Count("diagrams_truncated", 1)
		rec.Note("diagram of %s cut at %d requirements", r.ID, s.mermaid.maxNodes)
	}
	body := requirementBody{
		ID:       r.ID,
		Heading:  r.Heading,
		Text:     RenderText(r.Text),
		Badge:    StatusBadge(rollup.Label),
		Counts:   rollup.Counts.Entries(),
		AllTests: uniqueSorted(rollup.TestIDs),
		Diagram:  diagram,
	}

	for _, in := range r.Incoming {
		body.Incoming = append(body.Incoming, s.related(root, in))
	}
	classifier := s.graph.Classifier()
	for _, out := range r.Outgoing {
		if classifier.IsTest(out) {
			continue
		}
		body.Outgoing = append(body.Outgoing, s.related(root, out))
	}
	for _, tid := range s.graph.DirectTests(r.ID) {
		tc, ok := s.graph.Test(tid)
		if !ok {
			body.DirectTests = append(body.DirectTests, directTestRow{ID: tid, Missing: true})
			continue
		}
		body.DirectTests = append(body.DirectTests, directTestRow{
			ID:    tid,
			Badge: ResultBadge(tc.Result),
			Text:  Truncate(tc.Text, s.truncate),
			Notes: Truncate(tc.Notes, s.truncate),
		})
	}

	title := r.ID
	if r.Heading != "" {
		title += " " + r.Heading
	}
	return s.render(outDir, RequirementURL(r.ID), "requirement.html", page{Title: title, Root: root, Body: body})
}

func (s *SiteGenerator) link(root, id string) reqLink {
	return reqLink{ID: id, URL: root + RequirementURL(id)}
}

func (s *SiteGenerator) related(root, id string) relatedRow {
	r, ok := s.graph.Requirement(id)
	if !ok {
		return relatedRow{ID: id, Broken: true}
	}
	return relatedRow{
		ID:      id,
		URL:     root + RequirementURL(id),
		Heading: r.Heading,
		Text:    Truncate(r.Text, s.truncate),
	}
}

type editModule struct {
	Abbrev string
	Reqs   []graph.Requirement
}

// editModules groups requirements by module: hierarchy order first, then
// modules absent from the hierarchy sorted by abbreviation.
func (s *SiteGenerator) editModules(reqs []graph.Requirement) []editModule {
	byModule := make(map[string][]graph.Requirement)
	for _, r := range reqs {
		byModule[r.Module] = append(byModule[r.Module], r)
	}

	var out []editModule
	seen := make(map[string]bool)
	for _, m := range s.modules {
		if seen[m.Abbrev] {
			continue
		}
		seen[m.Abbrev] = true
		out = append(out, editModule{Abbrev: m.Abbrev, Reqs: byModule[m.Abbrev]})
	}
	var extra []string
	for mod := range byModule {
		if !seen[mod] {
			extra = append(extra, mod)
		}
	}
	sort.Strings(extra)
	for _, mod := range extra {
		out = append(out, editModule{Abbrev: mod, Reqs: byModule[mod]})
	}
	return out
}

type editRow struct {
	ID       string
	Heading  string
	Text     string
	Incoming string
	Outgoing string
}

func (s *SiteGenerator) writeEdit(outDir string, modules []editModule) error {
	const root = "../"
	type card struct {
		URL    string
		Module string
		Count  int
	}
	cards := []card{}
	for _, m := range modules {
		cards = append(cards, card{
			URL:    strings.TrimPrefix(ModuleEditURL(m.Abbrev), "edit/"),
			Module: m.Abbrev,
			Count:  len(m.Reqs),
		})
	}
	if err := s.render(outDir, "edit/index.html", "edit_index.html", page{Title: "Edit Links", Root: root, Body: cards}); err != nil {
		return err
	}

	for _, m := range modules {
		rows := make([]editRow, 0, len(m.Reqs))
		for _, r := range m.Reqs {
			rows = append(rows, editRow{
				ID:       r.ID,
				Heading:  r.Heading,
				Text:     r.Text,
				Incoming: strings.Join(r.Incoming, ";"),
				Outgoing: strings.Join(r.Outgoing, ";"),
			})
		}
		body := struct {
			Module string
			Rows   []editRow
		}{Module: m.Abbrev, Rows: rows}
		if err := s.render(outDir, ModuleEditURL(m.Abbrev), "edit_module.html", page{Title: "Edit " + m.Abbrev, Root: root, Body: body}); err != nil {
			return err
		}
	}
	return nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := []string{}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
