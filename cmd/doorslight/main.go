package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"doorslight/internal/analysis"
	"doorslight/internal/config"
	"doorslight/internal/crawler"
	"doorslight/internal/generator"
	"doorslight/internal/git"
	"doorslight/internal/graph"
	"doorslight/internal/index"
	"doorslight/internal/retrieval"
	"doorslight/internal/storage"
	"doorslight/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath   string
	dbPath       string
	snapshotPath string
	projectName  string
	verbose      bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "doorslight",
	Short: "Traceability site generator for DOORS CSV exports",
	Long: `doorslight loads per-module requirement and test CSV exports, resolves the
link graph between them, and renders a static HTML site with consolidated
test status for every requirement.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "doorslight.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the snapshot database (SQLite); overrides project.database")
	rootCmd.PersistentFlags().StringVar(&snapshotPath, "snapshot", "", "Load a JSON snapshot written by 'scan --json' instead of the exports or database")
	rootCmd.PersistentFlags().StringVar(&projectName, "project-name", "", "Project name shown in the site header")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	scanCmd.Flags().String("json", "", "Also write the loaded snapshot to this JSON file")
	generateCmd.Flags().Bool("from-db", false, "Render the stored snapshot instead of re-reading the exports")
	generateCmd.Flags().StringP("out", "o", "", "Output directory; overrides project.output")
	rollupCmd.Flags().Bool("json", false, "Print rollups as JSON")
	rollupCmd.Flags().Bool("from-db", false, "Use the stored snapshot instead of re-reading the exports")
	checkCmd.Flags().Bool("strict", false, "Exit non-zero when the report has findings")
	impactCmd.Flags().Int("max-hops", 0, "Limit how many parent levels are reported (0 = all)")
	impactCmd.Flags().Bool("json", false, "Print the impact as JSON")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(rollupCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(impactCmd)
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath != "" {
		cfg.Project.Database = dbPath
	}
	if projectName != "" {
		cfg.Project.Name = projectName
	}
	return cfg, nil
}

func newIndexer(cfg *config.Config) *index.Indexer {
	classifier := graph.NewClassifier(cfg.Links.TestCode)
	cr := crawler.NewCrawler(crawler.Patterns{
		Requirements: cfg.Discovery.Requirements,
		Tests:        cfg.Discovery.Tests,
	}, classifier, logger)

	opts := []graph.Option{graph.WithTestCode(cfg.Links.TestCode)}
	if cfg.Links.StrictIDs {
		opts = append(opts, graph.WithStrictIDs())
	}
	return index.NewIndexer(cr, logger, opts...)
}

// loadProject builds the graph from a --snapshot JSON file, from the stored
// snapshot when fromDB is set, or from the exports tree. Progress lines go to
// progress, never to the stream a command prints its results on.
func loadProject(ctx context.Context, cfg *config.Config, fromDB bool, progress io.Writer) (*index.Dataset, *index.Project, error) {
	idx := newIndexer(cfg)
	if snapshotPath != "" {
		fmt.Fprintf(progress, "🔄 Loading snapshot: %s\n", snapshotPath)
		ds, err := index.LoadDataset(snapshotPath)
		if err != nil {
			return nil, nil, err
		}
		if projectName != "" || ds.Project == "" {
			ds.Project = cfg.Project.Name
		}
		p, err := idx.Build(ds)
		if err != nil {
			return nil, nil, err
		}
		return ds, p, nil
	}
	if !fromDB {
		fmt.Fprintf(progress, "📂 Loading exports: %s\n", cfg.Project.Exports)
		return idx.BuildProject(cfg.Project.Exports, cfg.HierarchyPath(), cfg.Project.Name)
	}

	store, err := storage.NewSQLiteStore(cfg.Project.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	fmt.Fprintf(progress, "🔄 Loading snapshot: %s\n", cfg.Project.Database)
	ds, err := store.LoadDataset(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if projectName != "" || ds.Project == "" {
		ds.Project = cfg.Project.Name
	}
	p, err := idx.Build(ds)
	if err != nil {
		return nil, nil, err
	}
	return ds, p, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var scanCmd = &cobra.Command{
	Use:   "scan [exports]",
	Short: "Load the CSV exports, build the link graph, and store the snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) > 0 {
			cfg.Project.Exports = args[0]
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "🚀 Building traceability graph...")
		start := time.Now()
		ds, p, err := loadProject(ctx, cfg, false, out)
		if err != nil {
			return err
		}
		g := p.Graph
		fmt.Fprintf(out, "✅ Graph built in %v. %d requirements, %d tests, %d modules.\n",
			time.Since(start), g.Len(), len(g.Tests()), len(ds.Modules))

		store, err := storage.NewSQLiteStore(cfg.Project.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		fmt.Fprintln(out, "💾 Saving snapshot...")
		if err := store.SaveDataset(ctx, ds); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}

		if jsonPath, _ := cmd.Flags().GetString("json"); jsonPath != "" {
			if err := index.SaveDataset(ds, jsonPath); err != nil {
				return err
			}
			fmt.Fprintf(out, "📝 Snapshot JSON: %s\n", jsonPath)
		}

		if dups := g.Duplicates(); len(dups) > 0 {
			fmt.Fprintf(out, "⚠️  Duplicate requirement ids (last record kept): %s\n", strings.Join(dups, ", "))
		}
		fmt.Fprintf(out, "🎉 Scan complete! Database: %s\n", cfg.Project.Database)
		return nil
	},
}

func generateSite(ctx context.Context, cfg *config.Config, p *index.Project, outDir string, progress io.Writer) error {
	gen, err := generator.NewSiteGenerator(p,
		generator.WithWorkers(cfg.Render.Workers),
		generator.WithTruncate(cfg.Render.Truncate),
		generator.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	fmt.Fprintln(progress, "🖨️  Rendering site...")
	start := time.Now()
	if err := gen.GenerateSite(ctx, outDir); err != nil {
		return fmt.Errorf("failed to generate site: %w", err)
	}
	fmt.Fprintf(progress, "✅ Site generated in '%s' (%v).\n", outDir, time.Since(start).Round(time.Millisecond))
	return nil
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Render the static traceability site",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if out, _ := cmd.Flags().GetString("out"); out != "" {
			cfg.Project.Output = out
		}
		fromDB, _ := cmd.Flags().GetBool("from-db")

		ctx, cancel := signalContext()
		defer cancel()

		_, p, err := loadProject(ctx, cfg, fromDB, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return generateSite(ctx, cfg, p, cfg.Project.Output, cmd.OutOrStdout())
	},
}

type rollupOutput struct {
	ID          string       `json:"id"`
	Heading     string       `json:"heading"`
	Descendants []string     `json:"descendants"`
	Rollup      graph.Rollup `json:"rollup"`
}

var rollupCmd = &cobra.Command{
	Use:   "rollup <id>...",
	Short: "Print the consolidated test status of requirements",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fromDB, _ := cmd.Flags().GetBool("from-db")
		asJSON, _ := cmd.Flags().GetBool("json")
		ctx := cmd.Context()

		_, p, err := loadProject(ctx, cfg, fromDB, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		g := p.Graph

		out := make([]rollupOutput, 0, len(args))
		for _, id := range args {
			r, ok := g.Requirement(id)
			if !ok {
				return fmt.Errorf("requirement %s: %w", id, storage.ErrNotFound)
			}
			out = append(out, rollupOutput{
				ID:          id,
				Heading:     r.Heading,
				Descendants: g.Descendants(id),
				Rollup:      g.Rollup(id),
			})
		}

		w := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		for _, o := range out {
			fmt.Fprintf(w, "%s  %s\n", o.ID, o.Heading)
			fmt.Fprintf(w, "  Status:      %s\n", o.Rollup.Label)
			counts := []string{}
			for _, e := range o.Rollup.Counts.Entries() {
				counts = append(counts, fmt.Sprintf("%s=%d", e.Label, e.Count))
			}
			if len(counts) == 0 {
				counts = append(counts, "none")
			}
			fmt.Fprintf(w, "  Counts:      %s\n", strings.Join(counts, ", "))
			fmt.Fprintf(w, "  Descendants: %d\n", len(o.Descendants))
			fmt.Fprintf(w, "  Tests:       %s\n", strings.Join(o.Rollup.TestIDs, ", "))
		}
		return nil
	},
}

var errFindings = errors.New("consistency check failed")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report broken links, missing tests, cycles, and orphans",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		strict, _ := cmd.Flags().GetBool("strict")

		out := cmd.OutOrStdout()
		_, p, err := loadProject(cmd.Context(), cfg, false, out)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, "🔍 Checking link consistency...")
		report := analysis.Check(p.Graph)
		fmt.Fprintf(out, "  -> %d requirements, %d tests\n", report.Requirements, report.Tests)
		for _, b := range report.BrokenLinks {
			suffix := ""
			if b.Malformed {
				suffix = " (malformed id)"
			}
			fmt.Fprintf(out, "  ❌ broken link   %s -> %s%s\n", b.From, b.Target, suffix)
		}
		for _, m := range report.MissingTests {
			fmt.Fprintf(out, "  ❌ missing test  %s -> %s\n", m.From, m.TestID)
		}
		for _, id := range report.Cycles {
			fmt.Fprintf(out, "  🔁 in cycle      %s\n", id)
		}
		for _, id := range report.Orphans {
			fmt.Fprintf(out, "  ⚠️  orphan        %s\n", id)
		}
		for _, id := range report.Duplicates {
			fmt.Fprintf(out, "  ⚠️  duplicate id  %s\n", id)
		}
		fmt.Fprintf(out, "  -> %d requirements without any tests\n", len(report.Untested))

		n := report.Findings()
		if n == 0 {
			fmt.Fprintln(out, "✅ No findings.")
			return nil
		}
		fmt.Fprintf(out, "📊 %d findings.\n", n)
		if strict {
			return fmt.Errorf("%w: %d findings", errFindings, n)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate the site whenever the exports change",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		out := cmd.OutOrStdout()

		rebuild := func(ctx context.Context) error {
			ds, p, err := loadProject(ctx, cfg, false, out)
			if err != nil {
				return err
			}
			store, err := storage.NewSQLiteStore(cfg.Project.Database)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer store.Close()
			if err := store.SaveDataset(ctx, ds); err != nil {
				return fmt.Errorf("failed to save snapshot: %w", err)
			}
			return generateSite(ctx, cfg, p, cfg.Project.Output, out)
		}

		if err := rebuild(ctx); err != nil {
			fmt.Fprintf(out, "⚠️  Initial build failed: %v\n", err)
		}

		w, err := watch.New(cfg.Project.Exports, watch.DefaultPatterns(), watch.DefaultDebounce, logger)
		if err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		fmt.Fprintf(out, "👀 Watching %s (Ctrl+C to stop)\n", cfg.Project.Exports)
		return w.Run(ctx, rebuild)
	},
}

var impactCmd = &cobra.Command{
	Use:   "impact [base-ref]",
	Short: "List requirements whose rollup may change since a git revision of the exports",
	Long: `impact diffs the exports tree against base-ref (default HEAD), maps the
changed CSV lines to the records now on those lines, and walks up the link
graph to every requirement whose consolidated status may change.

Records are read from the working tree only. A deleted requirement row is
credited to the record that now occupies its lines, and the deleted
requirement's former parents are not reported; run 'check' or regenerate the
site to review links that pointed at it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		baseRef := "HEAD"
		if len(args) > 0 {
			baseRef = args[0]
		}
		maxHops, _ := cmd.Flags().GetInt("max-hops")
		asJSON, _ := cmd.Flags().GetBool("json")
		ctx := cmd.Context()

		out := cmd.OutOrStdout()
		progress := out
		if asJSON {
			progress = cmd.ErrOrStderr()
		}

		changes, err := git.ChangedFiles(ctx, cfg.Project.Exports, baseRef, "*.csv")
		if err != nil {
			return err
		}
		fmt.Fprintf(progress, "📝 Detected %d changed export files.\n", len(changes))

		ids, removed, err := retrieval.ChangedIDs(cfg.Project.Exports, changes)
		if err != nil {
			return err
		}
		_, p, err := loadProject(ctx, cfg, false, progress)
		if err != nil {
			return err
		}
		imp := retrieval.ExtractImpact(p.Graph, ids, retrieval.Config{MaxHops: maxHops})
		imp.RemovedFiles = removed

		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(imp)
		}
		if len(changes) == 0 {
			fmt.Fprintln(out, "✅ No changes detected.")
			return nil
		}
		fmt.Fprintf(out, "  -> %d requirements and %d tests changed\n", len(imp.ChangedRequirements), len(imp.ChangedTests))
		for _, f := range imp.RemovedFiles {
			fmt.Fprintf(out, "  🗑️  removed file  %s\n", f)
		}
		for _, id := range imp.Unresolved {
			fmt.Fprintf(out, "  ⚠️  not loaded      %s\n", id)
		}
		for _, id := range imp.Affected {
			fmt.Fprintf(out, "  [%d] %-20s %s\n", imp.Depth[id], id, p.Graph.Rollup(id).Label)
		}
		return nil
	},
}
