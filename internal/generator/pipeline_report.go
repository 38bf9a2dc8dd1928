package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity ranks report signals. Higher values sort first.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityInfo:     "info",
	SeverityWarning:  "warning",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "info"
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	for sev, name := range severityNames {
		if name == string(b) {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", b)
}

// Signal is one finding about the rendered dataset. Subject is the
// requirement the finding is about, when there is one.
type Signal struct {
	Code     string   `json:"code"`
	Stage    string   `json:"stage"`
	Severity Severity `json:"severity"`
	Subject  string   `json:"subject,omitempty"`
	Message  string   `json:"message"`
}

// Stage is the record of one build step.
type Stage struct {
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
	Pages      int            `json:"pages,omitempty"`
	Counts     map[string]int `json:"counts,omitempty"`
	Notes      []string       `json:"notes,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// StageRecorder collects what a running stage produced. It is safe for the
// stage's render workers to share.
type StageRecorder struct {
	mu    sync.Mutex
	stage *Stage
}

// Pages adds n written pages to the stage.
func (rec *StageRecorder) Pages(n int) {
	rec.mu.Lock()
	rec.stage.Pages += n
	rec.mu.Unlock()
}

func (rec *StageRecorder) Count(key string, n int) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.stage.Counts == nil {
		rec.stage.Counts = make(map[string]int)
	}
	rec.stage.Counts[key] += n
}

// Note records a stage-level detail, such as a requirement whose diagram was
// cut short. Notes are deduplicated and sorted when the stage ends.
func (rec *StageRecorder) Note(format string, args ...any) {
	rec.mu.Lock()
	rec.stage.Notes = append(rec.stage.Notes, fmt.Sprintf(format, args...))
	rec.mu.Unlock()
}

type ReportSummary struct {
	Stages       int            `json:"stages"`
	FailedStages []string       `json:"failed_stages,omitempty"`
	Pages        int            `json:"pages"`
	Signals      map[string]int `json:"signals"`
}

// PipelineReport records what one site build did, stage by stage. It is
// written next to the site as pipeline_report.json even when the build fails.
type PipelineReport struct {
	RunID      string        `json:"run_id"`
	Project    string        `json:"project"`
	OutputDir  string        `json:"output_dir"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []*Stage      `json:"stages"`
	Signals    []Signal      `json:"signals"`
	Summary    ReportSummary `json:"summary"`

	mu sync.Mutex
}

func NewPipelineReport(project, outputDir string) *PipelineReport {
	return &PipelineReport{
		RunID:     uuid.NewString(),
		Project:   project,
		OutputDir: outputDir,
		StartedAt: time.Now().UTC(),
		Stages:    []*Stage{},
		Signals:   []Signal{},
	}
}

// RunStage runs fn as the named stage and records its duration and outcome.
// fn's error is returned unchanged.
func (r *PipelineReport) RunStage(name string, fn func(*StageRecorder) error) error {
	st := &Stage{Name: name, StartedAt: time.Now().UTC()}
	err := fn(&StageRecorder{stage: st})
	st.DurationMS = time.Since(st.StartedAt).Milliseconds()
	st.Notes = uniqueSorted(st.Notes)
	if len(st.Notes) == 0 {
		st.Notes = nil
	}
	switch {
	case err == nil:
		st.Status = "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		st.Status = "canceled"
		st.Error = err.Error()
	default:
		st.Status = "error"
		st.Error = err.Error()
	}

	r.mu.Lock()
	r.Stages = append(r.Stages, st)
	r.mu.Unlock()
	return err
}

// AddSignal records a finding. Signals without a code or message are
// ignored.
func (r *PipelineReport) AddSignal(s Signal) {
	s.Code = strings.TrimSpace(s.Code)
	s.Message = strings.TrimSpace(s.Message)
	if s.Code == "" || s.Message == "" {
		return
	}
	r.mu.Lock()
	r.Signals = append(r.Signals, s)
	r.mu.Unlock()
}

// Finalize orders signals and fills the summary. Signals sort by severity,
// then by the order their stage ran, then code, subject and message, so two
// builds of the same snapshot produce the same report.
func (r *PipelineReport) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.FinishedAt = time.Now().UTC()
	stageOrder := make(map[string]int, len(r.Stages))
	for i, st := range r.Stages {
		if _, ok := stageOrder[st.Name]; !ok {
			stageOrder[st.Name] = i
		}
	}
	rank := func(stage string) int {
		if i, ok := stageOrder[stage]; ok {
			return i
		}
		return len(r.Stages)
	}
	sort.SliceStable(r.Signals, func(i, j int) bool {
		a, b := r.Signals[i], r.Signals[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if ra, rb := rank(a.Stage), rank(b.Stage); ra != rb {
			return ra < rb
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Message < b.Message
	})

	sum := ReportSummary{Stages: len(r.Stages), Signals: map[string]int{}}
	for _, sev := range []Severity{SeverityCritical, SeverityWarning, SeverityInfo} {
		sum.Signals[sev.String()] = 0
	}
	for _, s := range r.Signals {
		sum.Signals[s.Severity.String()]++
	}
	for _, st := range r.Stages {
		sum.Pages += st.Pages
		if st.Status != "ok" {
			sum.FailedStages = append(sum.FailedStages, st.Name)
		}
	}
	r.Summary = sum
}

// Save finalizes the report and writes it as indented JSON.
func (r *PipelineReport) Save(path string) error {
	r.Finalize()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode pipeline report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
