package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hypocycle/adapters/excel"
	"hypocycle/domain/verdict"
	"hypocycle/internal/report"
	"hypocycle/internal/trend"

	"github.com/spf13/cobra"
)

var (
	analyzeHypothesis string
	analyzeOrdering   string
	analyzeReport     string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <results.json|results.csv|results.xlsx>",
	Short: "Run the trend check on measurements from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readResults(args[0])
		if err != nil {
			return err
		}

		var opts []trend.Option
		switch analyzeOrdering {
		case string(verdict.OrderingLexicographic):
		case string(verdict.OrderingOrdinal):
			if len(data.Ordinals) == 0 {
				return fmt.Errorf("ordinal ordering needs an ordinal column")
			}
			opts = append(opts, trend.WithOrdinals(data.Ordinals))
		default:
			return fmt.Errorf("unknown ordering %q", analyzeOrdering)
		}

		record, err := trend.NewAnalyzer(opts...).Analyze(analyzeHypothesis, data.Results)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		switch analyzeReport {
		case "":
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(record)
		case "markdown", "md":
			_, err = w.Write(report.Markdown(record, nil))
		case "html":
			_, err = w.Write(report.HTML(record, nil))
		default:
			err = fmt.Errorf("unknown report format %q", analyzeReport)
		}
		return err
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeHypothesis, "hypothesis", "", "hypothesis the measurements test")
	analyzeCmd.Flags().StringVar(&analyzeOrdering, "ordering", "lexicographic", "lexicographic or ordinal")
	analyzeCmd.Flags().StringVar(&analyzeReport, "report", "", "print a report instead of JSON: markdown or html")
	rootCmd.AddCommand(analyzeCmd)
}

// readResults loads a JSON object of sample id to value, or a CSV/XLSX table
func readResults(path string) (*excel.ResultData, error) {
	if strings.ToLower(filepath.Ext(path)) != ".json" {
		return excel.NewDataReader(path).ReadResults()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var results verdict.ResultSet
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return &excel.ResultData{Results: results}, nil
}
