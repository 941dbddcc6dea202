package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"hypocycle/app"
	"hypocycle/internal/container"
	"hypocycle/internal/report"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runFollowUp     string
	runNoFollowUp   bool
	runSeed         int64
	runAllowPartial bool
	runOrdering     string
	runExport       string
	runReport       string
)

var runCmd = &cobra.Command{
	Use:   "run <hypothesis> [hypothesis...]",
	Short: "Run a full cycle for one or more hypotheses",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(args) > 1 && (runExport != "" || runReport != "") {
			return fmt.Errorf("--export and --report take a single hypothesis, got %d", len(args))
		}

		if cmd.Flags().Changed("seed") {
			cfg.Execution.Seed = runSeed
		}
		if cmd.Flags().Changed("ordering") {
			cfg.Cycle.Ordering = runOrdering
		}
		if cmd.Flags().Changed("allow-partial") {
			cfg.Cycle.AllowPartial = runAllowPartial
		}
		if cmd.Flags().Changed("follow-up") {
			cfg.Cycle.FollowUp = runFollowUp
		}
		if runNoFollowUp {
			cfg.Cycle.FollowUp = ""
		}

		c, err := container.New(ctx, cfg, zap.L())
		if err != nil {
			return err
		}
		defer c.Close()

		if len(args) > 1 {
			reqs := make([]app.CycleRequest, len(args))
			for i, h := range args {
				reqs[i] = c.CycleRequest(h)
			}
			return writeOutcomes(cmd.OutOrStdout(), c.Orchestrator.RunMany(ctx, reqs))
		}

		result, err := c.Orchestrator.RunCycle(ctx, c.CycleRequest(args[0]))
		if result != nil && result.Record != nil {
			if exportErr := exportResult(cmd, c, result); exportErr != nil {
				return exportErr
			}
		}
		if result != nil {
			if writeErr := writeResult(cmd.OutOrStdout(), result); writeErr != nil {
				return writeErr
			}
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&runFollowUp, "follow-up", "", "follow-up hypothesis run when the first is supported (default from FOLLOW_UP_HYPOTHESIS)")
	runCmd.Flags().BoolVar(&runNoFollowUp, "no-follow-up", false, "do not start a follow-up cycle")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "random seed for the simulated strategy")
	runCmd.Flags().BoolVar(&runAllowPartial, "allow-partial", false, "analyze partial results when some samples fail")
	runCmd.Flags().StringVar(&runOrdering, "ordering", "lexicographic", "sample ordering for the trend check: lexicographic or ordinal")
	runCmd.Flags().StringVar(&runExport, "export", "", "write the cycle to an .xlsx workbook (single hypothesis only)")
	runCmd.Flags().StringVar(&runReport, "report", "", "print a report instead of JSON: markdown or html (single hypothesis only)")
	rootCmd.AddCommand(runCmd)
}

func exportResult(cmd *cobra.Command, c *container.Container, result *app.CycleResult) error {
	if runExport == "" {
		return nil
	}
	f, err := os.Create(runExport)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()
	if err := c.Exporter.Export(cmd.Context(), f, result.Batch.Specs, result.Record); err != nil {
		return err
	}
	zap.L().Info("cycle exported", zap.String("path", runExport))
	return nil
}

// writeResult prints the result as JSON, or as a report per cycle
func writeResult(w io.Writer, result *app.CycleResult) error {
	switch runReport {
	case "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "markdown", "md", "html":
		for r := result; r != nil; r = r.FollowUp {
			if r.Record == nil {
				continue
			}
			if runReport == "html" {
				_, _ = w.Write(report.HTML(r.Record, r.Batch.Specs))
			} else {
				_, _ = w.Write(report.Markdown(r.Record, r.Batch.Specs))
			}
			_, _ = fmt.Fprintln(w)
		}
		return nil
	default:
		return fmt.Errorf("unknown report format %q", runReport)
	}
}

type outcomeJSON struct {
	Hypothesis string          `json:"hypothesis"`
	Result     *app.CycleResult `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func writeOutcomes(w io.Writer, outcomes []app.CycleOutcome) error {
	out := make([]outcomeJSON, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		out[i] = outcomeJSON{Hypothesis: o.Request.Hypothesis, Result: o.Result}
		if o.Err != nil {
			out[i].Error = o.Err.Error()
			failed++
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cycles failed", failed, len(outcomes))
	}
	return nil
}
