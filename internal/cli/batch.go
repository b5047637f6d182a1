package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/radaudit/internal/batch"
	"github.com/ppiankov/radaudit/internal/metrics"
	"github.com/ppiankov/radaudit/internal/model"
	"github.com/ppiankov/radaudit/internal/render"
	"github.com/ppiankov/radaudit/internal/store"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	metricsAddr  string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <archive.zip|dir>",
	Short: "Audit every case in a zip archive or directory",
	Long: `Batch audits many cases concurrently:
- Read cases from a zip archive or an unpacked directory
  (one folder per case with an image and report.txt, or image and
  report files sharing a name)
- Audit cases in parallel with a configurable worker count
- Store every run and the batch summary
- Optionally write a JSON and Markdown report per case

Example:
  radaudit batch cases.zip
  radaudit batch ./cases --concurrency 4 --output-dir ./audits
  radaudit batch cases.zip --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent cases (default: batch.concurrency)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "", "write per-case reports to this directory (optional)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 2*time.Hour, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the batch runs")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
}

func runBatch(cmd *cobra.Command, args []string) error {
	source := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	workers := concurrency
	if workers <= 0 {
		workers = cfg.Batch.Concurrency
	}
	addr := metricsAddr
	if addr == "" {
		addr = cfg.Batch.MetricsAddr
	}

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "\n")
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "  radaudit Batch Audit\n")
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "\n")
	fmt.Fprintf(stderr, "  Source:       %s\n", source)
	fmt.Fprintf(stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(stderr, "  Provider:     %s\n", cfg.Generation.Provider)
	if outputDir != "" {
		fmt.Fprintf(stderr, "  Output dir:   %s\n", outputDir)
	}
	fmt.Fprintf(stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(stderr, "\n")

	cases, cleanup, err := loadCases(source)
	if err != nil {
		return err
	}
	defer cleanup()
	fmt.Fprintf(stderr, "✓ Loaded %d cases\n\n", len(cases))

	if addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				zap.L().Warn("metrics server stopped", zap.Error(err))
			}
		}()
		fmt.Fprintf(stderr, "  Metrics:      http://%s/metrics\n\n", addr)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	auditor, err := newAuditor(cfg, st)
	if err != nil {
		return err
	}

	runner := batch.NewRunner(auditor, st, workers)
	result, err := runner.Run(ctx, source, cases, func(done, total int, message string) {
		fmt.Fprintf(stderr, "  [%d/%d] %s\n", done, total, message)
	})
	if err != nil {
		return eris.Wrap(err, "batch failed")
	}

	if outputDir != "" {
		if err := writeCaseReports(ctx, st, result.Cases); err != nil {
			return err
		}
	}

	s := result.Summary
	fmt.Fprintf(stderr, "\n")
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "  Batch Complete: %s\n", result.BatchID)
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "\n")
	fmt.Fprintf(stderr, "  Total:          %d cases\n", s.TotalCases)
	fmt.Fprintf(stderr, "  Completed:      %d\n", s.Completed)
	fmt.Fprintf(stderr, "  Failed:         %d\n", s.Failed)
	fmt.Fprintf(stderr, "  Avg score:      %.1f\n", s.AvgScore)
	fmt.Fprintf(stderr, "  Severity:       low %d, medium %d, high %d\n",
		s.SeverityDistribution[model.SeverityLow], s.SeverityDistribution[model.SeverityMedium], s.SeverityDistribution[model.SeverityHigh])
	fmt.Fprintf(stderr, "  Needs review:   %.1f%%\n", s.PctNeedingReview)
	for _, e := range s.Errors {
		fmt.Fprintf(stderr, "  ✗ %s: %s\n", e.CaseID, e.Error)
	}
	fmt.Fprintf(stderr, "\n")

	return nil
}

// loadCases parses a directory in place or extracts an archive to a temp dir
func loadCases(source string) ([]batch.Case, func(), error) {
	noop := func() {}

	info, err := os.Stat(source)
	if err != nil {
		return nil, noop, eris.Wrap(err, "open source")
	}
	if info.IsDir() {
		cases, err := batch.ParseDir(source)
		return cases, noop, err
	}
	if !strings.EqualFold(filepath.Ext(source), ".zip") {
		return nil, noop, eris.Errorf("unsupported source %s: expected a .zip archive or a directory", source)
	}

	extractDir := cfg.Batch.ExtractDir
	cleanup := noop
	if extractDir == "" {
		tmp, err := os.MkdirTemp("", "radaudit-batch-")
		if err != nil {
			return nil, noop, eris.Wrap(err, "create extract dir")
		}
		extractDir = tmp
		cleanup = func() { _ = os.RemoveAll(tmp) }
	}

	cases, err := batch.ParseArchive(source, extractDir)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	return cases, cleanup, nil
}

// writeCaseReports renders JSON and Markdown for every completed case
func writeCaseReports(ctx context.Context, st store.Store, cases []model.BatchCase) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return eris.Wrap(err, "create output directory")
	}

	renderer := render.NewRenderer(!noFooter)
	for _, c := range cases {
		if c.Error != "" {
			continue
		}
		result, err := st.GetRun(ctx, c.RunID)
		if err != nil {
			return eris.Wrapf(err, "load run %s", c.RunID)
		}

		slug := sanitizeFilename(c.CaseID)
		if err := renderer.RenderJSON(result, filepath.Join(outputDir, slug+".json")); err != nil {
			return eris.Wrapf(err, "write JSON for %s", c.CaseID)
		}
		if err := renderer.RenderMarkdown(result, filepath.Join(outputDir, slug+".md")); err != nil {
			return eris.Wrapf(err, "write Markdown for %s", c.CaseID)
		}
	}
	return nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename sanitizes a case id for use as a filename
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		s = "case"
	}

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}

	return s
}
