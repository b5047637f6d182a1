package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ppiankov/radaudit/internal/model"
	"github.com/ppiankov/radaudit/internal/render"
	"github.com/ppiankov/radaudit/internal/score"
	"github.com/ppiankov/radaudit/internal/store"
)

var (
	showJSON     string
	showMD       string
	showHTML     string
	runsSeverity string
	runsLimit    int
	eventsLimit  int
)

// showCmd reopens a stored run
var showCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show a stored audit run",
	Long: `Show loads a stored audit run and prints its summary.
Use --json, --md or --html to render the full report to a file.

Example:
  radaudit show run_1767323045000_ab12cd34
  radaudit show run_1767323045000_ab12cd34 --html audit.html`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		result, err := st.GetRun(ctx, args[0])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return eris.Errorf("run %s not found", args[0])
			}
			return eris.Wrap(err, "load run")
		}

		renderer := render.NewRenderer(true)
		targets := []struct {
			path  string
			write func(*model.AuditResult, string) error
		}{
			{showJSON, renderer.RenderJSON},
			{showMD, renderer.RenderMarkdown},
			{showHTML, renderer.RenderHTML},
		}
		for _, t := range targets {
			if t.path == "" {
				continue
			}
			if err := t.write(result, t.path); err != nil {
				return eris.Wrap(err, "render failed")
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %s\n", t.path)
		}

		renderer.RenderSummary(cmd.OutOrStdout(), result)
		return nil
	},
}

// runsCmd lists stored runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored audit runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Severity: model.Severity(strings.ToLower(runsSeverity)),
			Limit:    runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		printRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

// eventsCmd prints the audit trail of a run
var eventsCmd = &cobra.Command{
	Use:   "events <run_id>",
	Short: "Print the audit trail of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		events, err := st.ListEvents(ctx, store.EventFilter{RunID: args[0], Limit: eventsLimit})
		if err != nil {
			return eris.Wrap(err, "list events")
		}
		if len(events) == 0 {
			return eris.Errorf("no events for run %s", args[0])
		}

		printEvents(cmd.OutOrStdout(), events)
		return nil
	},
}

// scoreCmd re-scores the alignments of a saved JSON result
var scoreCmd = &cobra.Command{
	Use:   "score <result.json>",
	Short: "Recompute the safety score of a saved JSON result",
	Long: `Score reads a JSON result written by 'radaudit audit --json' and
recomputes the safety score from its alignments, printing every signal
and the formula behind it. Stored scores are not modified.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read result")
		}

		var result model.AuditResult
		if err := json.Unmarshal(data, &result); err != nil {
			return eris.Wrap(err, "parse result")
		}

		s := score.NewScorer().Calculate(result.Alignments)
		printScore(cmd.OutOrStdout(), &result, s)
		return nil
	},
}

func printRuns(w io.Writer, runs []store.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-20s  %5s  %-8s  %s\n", "RUN", "CREATED", "SCORE", "SEVERITY", "LABEL")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %5d  %-8s  %s\n",
			r.RunID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.OverallScore, r.Severity, r.CaseLabel)
	}
}

func printEvents(w io.Writer, events []model.Event) {
	for _, ev := range events {
		fmt.Fprintf(w, "%s  %-24s  %s", ev.CreatedAt.Format("15:04:05.000"), ev.Type, ev.Actor)
		if len(ev.Detail) > 0 {
			detail, err := json.Marshal(ev.Detail)
			if err == nil {
				fmt.Fprintf(w, "  %s", detail)
			}
		}
		fmt.Fprintln(w)
	}
}

func printScore(w io.Writer, result *model.AuditResult, s model.Score) {
	fmt.Fprintf(w, "Safety score: %d/100 (%s)\n", s.Index, s.Severity)
	if result.OverallScore != s.Index {
		fmt.Fprintf(w, "Stored score: %d/100 (differs)\n", result.OverallScore)
	}
	fmt.Fprintf(w, "Labels: supported=%d uncertain=%d not_assessable=%d needs_review=%d\n",
		s.Counts[model.LabelSupported], s.Counts[model.LabelUncertain],
		s.Counts[model.LabelNotAssessable], s.Counts[model.LabelNeedsReview])

	for _, sig := range s.Signals {
		fmt.Fprintf(w, "  [%s] %s\n", sig.Severity, sig.Description)
		if formula, ok := sig.Data["formula"]; ok {
			fmt.Fprintf(w, "         %v\n", formula)
		}
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(scoreCmd)

	showCmd.Flags().StringVar(&showJSON, "json", "", "output JSON path (optional)")
	showCmd.Flags().StringVar(&showMD, "md", "", "output Markdown path (optional)")
	showCmd.Flags().StringVar(&showHTML, "html", "", "output HTML path (optional)")

	runsCmd.Flags().StringVar(&runsSeverity, "severity", "", "only list runs with this severity (low, medium, high)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "maximum number of entries")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 0, "maximum number of events (0 for all)")
}
