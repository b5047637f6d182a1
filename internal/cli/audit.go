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

	"github.com/ppiankov/radaudit/internal/llm"
	"github.com/ppiankov/radaudit/internal/pipeline"
	"github.com/ppiankov/radaudit/internal/render"
	"github.com/ppiankov/radaudit/internal/validate"
)

var (
	imagePath   string
	reportPath  string
	caseLabel   string
	outJSON     string
	outMD       string
	outHTML     string
	auditTime   time.Duration
	noFooter    bool
	useSample   string
	auditLoRAID string
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit a single report against its image",
	Long: `Audit runs the six-step pipeline on one image and report:
- Extract atomic claims from the report
- Read findings from the image
- Align each claim with the imaging evidence and label it
- Compute the safety score and severity
- Suggest rewrites and write a clinician summary
- Explain the edited report in plain language

The result is stored and can be reopened with 'radaudit show <run_id>'.

Example:
  radaudit audit --image chest.png --report report.txt
  radaudit audit --image chest.png --report report.txt --md audit.md --html audit.html
  radaudit audit --image chest.png --sample chf`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&imagePath, "image", "", "radiology image (png, jpeg, webp, bmp, tiff)")
	auditCmd.Flags().StringVar(&reportPath, "report", "", "report text file")
	auditCmd.Flags().StringVar(&useSample, "sample", "", "use a built-in sample report (pneumonia, chf, normal) instead of --report")
	auditCmd.Flags().StringVar(&caseLabel, "label", "", "case label recorded with the result")
	auditCmd.Flags().StringVar(&auditLoRAID, "lora", "", "LoRA adapter id recorded with the result")
	auditCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	auditCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	auditCmd.Flags().StringVar(&outHTML, "html", "", "output HTML path (optional)")
	auditCmd.Flags().DurationVar(&auditTime, "timeout", 10*time.Minute, "overall audit timeout")
	auditCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	_ = auditCmd.MarkFlagRequired("image")
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), auditTime)
	defer cancel()

	in, err := loadInput()
	if err != nil {
		return err
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

	stderr := cmd.ErrOrStderr()
	result, err := auditor.RunAudit(ctx, in, func(step, total int, message string) {
		fmt.Fprintf(stderr, "⚙️  [%d/%d] %s\n", step, total, message)
	})
	if err != nil {
		return eris.Wrap(err, "audit failed")
	}

	renderer := render.NewRenderer(!noFooter)
	outputs := []struct {
		path  string
		write func() error
	}{
		{outJSON, func() error { return renderer.RenderJSON(result, outJSON) }},
		{outMD, func() error { return renderer.RenderMarkdown(result, outMD) }},
		{outHTML, func() error { return renderer.RenderHTML(result, outHTML) }},
	}
	for _, out := range outputs {
		if out.path == "" {
			continue
		}
		if err := out.write(); err != nil {
			return eris.Wrap(err, "render failed")
		}
		fmt.Fprintf(stderr, "✓ Wrote %s\n", out.path)
	}

	renderer.RenderSummary(cmd.OutOrStdout(), result)
	return nil
}

// loadInput reads the image and report named by the flags
func loadInput() (pipeline.Input, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return pipeline.Input{}, eris.Wrap(err, "read image")
	}

	var text string
	switch {
	case useSample != "":
		sample, ok := llm.SampleReport(strings.ToLower(useSample))
		if !ok {
			return pipeline.Input{}, eris.Errorf("unknown sample %q (available: %s)", useSample, strings.Join(llm.Scenarios, ", "))
		}
		text = sample
	case reportPath != "":
		raw, err := os.ReadFile(reportPath)
		if err != nil {
			return pipeline.Input{}, eris.Wrap(err, "read report")
		}
		text = strings.TrimSpace(string(raw))
	default:
		return pipeline.Input{}, eris.New("one of --report or --sample is required")
	}

	label := caseLabel
	if label == "" {
		label = strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	}

	return pipeline.Input{
		ImageData:  data,
		ImageMIME:  validate.DetectImageMIME(data, imagePath),
		ReportText: text,
		CaseLabel:  label,
		LoRAID:     auditLoRAID,
	}, nil
}
