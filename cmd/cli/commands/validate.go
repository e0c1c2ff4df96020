package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/gsd/internal/stats"
)

type ValidateOptions struct {
	DataFile      string
	SyntheticFile string
	Threshold     float64
	JSON          bool
}

// ValidationResult compares a synthetic dataset with the private one on the
// configured workloads.
type ValidationResult struct {
	Rows          int                `json:"rows"`
	SyntheticRows int                `json:"synthetic_rows"`
	MaxError      float64            `json:"max_error"`
	AverageError  float64            `json:"average_error"`
	Workloads     map[string]float64 `json:"workloads"`
}

func NewValidateCmd() *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compare synthetic data with the private data on the workloads",
		Long: `Compute the max and average absolute error of a synthetic dataset
against the true marginal statistics of the private dataset. No privacy budget
is spent; the result is not differentially private.`,
		Example: `  # Report workload errors
  gsd-cli validate --config adult.yaml --data adult.csv --synthetic synth.csv

  # Fail when any statistic is off by more than 0.05
  gsd-cli validate --config adult.yaml --data adult.csv --synthetic synth.csv --threshold 0.05`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.DataFile, "data", "d", "", "Private input CSV (overrides data.input)")
	cmd.Flags().StringVarP(&opts.SyntheticFile, "synthetic", "s", "", "Synthetic CSV to validate (required)")
	cmd.Flags().Float64Var(&opts.Threshold, "threshold", 0, "Maximum allowed max error (0 disables the check)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the result as JSON")

	cmd.MarkFlagRequired("synthetic")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data") {
		cfg.Data.Input = opts.DataFile
	}

	ctx := cmd.Context()
	schema, workloads, private, err := loadWorkloads(ctx, cfg)
	if err != nil {
		return err
	}
	synthetic, err := readDataset(ctx, opts.SyntheticFile, schema, cfg.CSVOptions())
	if err != nil {
		return err
	}

	ledger, err := stats.NewLedger(workloads, stats.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := ledger.Fit(private); err != nil {
		return err
	}

	report, err := ledger.Report(synthetic)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	perWorkload, err := ledger.Errors(synthetic)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result := ValidationResult{
		Rows:          private.Rows(),
		SyntheticRows: synthetic.Rows(),
		MaxError:      report.MaxError,
		AverageError:  report.AverageError,
		Workloads:     make(map[string]float64, len(workloads)),
	}
	for i, w := range workloads {
		result.Workloads[w.Name()] = perWorkload[i]
	}

	out := cmd.OutOrStdout()
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Rows: %d private, %d synthetic\n", result.Rows, result.SyntheticRows)
		for _, w := range workloads {
			fmt.Fprintf(out, "  %-30s %.4f\n", w.Name(), result.Workloads[w.Name()])
		}
		fmt.Fprintf(out, "Max error: %.4f\n", result.MaxError)
		fmt.Fprintf(out, "Average error: %.5f\n", result.AverageError)
	}

	if opts.Threshold > 0 && result.MaxError > opts.Threshold {
		return fmt.Errorf("max error %.4f exceeds threshold %.4f", result.MaxError, opts.Threshold)
	}
	return nil
}
