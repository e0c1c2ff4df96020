package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/gsd/cmd/cli/config"
	"github.com/inferloop/gsd/internal/dataset"
	"github.com/inferloop/gsd/internal/domain"
	"github.com/inferloop/gsd/internal/generators"
	"github.com/inferloop/gsd/internal/observability/metrics"
	"github.com/inferloop/gsd/internal/privacy"
	"github.com/inferloop/gsd/internal/rng"
	"github.com/inferloop/gsd/internal/stats"
	"github.com/inferloop/gsd/pkg/constants"
)

type GenerateOptions struct {
	DataFile    string
	OutputFile  string
	Mode        string
	Seed        uint64
	Epsilon     float64
	Delta       float64
	Rounds      int
	Rows        int
	Generations int
	Columns     []string
	Metrics     bool
}

func NewGenerateCmd() *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a differentially private synthetic dataset",
		Long: `Measure marginal workloads of a private dataset under zCDP and fit a
synthetic dataset to the noisy measurements with a genetic search.`,
		Example: `  # Measure every configured workload once and fit
  gsd-cli generate --config adult.yaml --data adult.csv --epsilon 1 --output synth.csv

  # Adaptive mode, selecting one workload per round
  gsd-cli generate --config adult.yaml --data adult.csv --mode adaptive --rounds 10

  # Expose progress on :9090/metrics
  gsd-cli generate --config adult.yaml --data adult.csv --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	// Add flags
	cmd.Flags().StringVarP(&opts.DataFile, "data", "d", "", "Private input CSV (overrides data.input)")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "-", "Output CSV (- for stdout)")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", constants.ModeOneShot, "Run mode (oneshot, adaptive)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "Random seed")
	cmd.Flags().Float64Var(&opts.Epsilon, "epsilon", constants.DefaultEpsilon, "Privacy parameter epsilon")
	cmd.Flags().Float64Var(&opts.Delta, "delta", constants.DefaultDelta, "Privacy parameter delta")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 1, "Adaptive rounds")
	cmd.Flags().IntVar(&opts.Rows, "rows", constants.DefaultDataSize, "Synthetic rows to generate")
	cmd.Flags().IntVar(&opts.Generations, "generations", constants.DefaultNumGenerations, "Generation cap per fit")
	cmd.Flags().StringSliceVar(&opts.Columns, "columns", nil, "Columns to write (default all)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "Serve Prometheus metrics while running")

	return cmd
}

// apply overrides configuration values with the flags the user set.
func (o *GenerateOptions) apply(cmd *cobra.Command, cfg *config.CLIConfig) {
	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.Data.Input = o.DataFile
	}
	if flags.Changed("output") {
		cfg.Data.Output = o.OutputFile
	}
	if flags.Changed("mode") {
		cfg.Privacy.Mode = o.Mode
	}
	if flags.Changed("seed") {
		cfg.Privacy.Seed = o.Seed
	}
	if flags.Changed("epsilon") {
		cfg.Privacy.Epsilon = o.Epsilon
	}
	if flags.Changed("delta") {
		cfg.Privacy.Delta = o.Delta
	}
	if flags.Changed("rounds") {
		cfg.Privacy.Rounds = o.Rounds
	}
	if flags.Changed("rows") {
		cfg.Generator.DataSize = o.Rows
	}
	if flags.Changed("generations") {
		cfg.Generator.NumGenerations = o.Generations
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = o.Metrics
	}
}

func runGenerate(cmd *cobra.Command, opts *GenerateOptions) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	schema, workloads, private, err := loadWorkloads(ctx, cfg)
	if err != nil {
		return err
	}

	rho, err := privacy.CDPRho(cfg.Privacy.Epsilon, cfg.Privacy.Delta)
	if err != nil {
		return fmt.Errorf("invalid privacy budget: %w", err)
	}
	ledger, err := stats.NewLedger(workloads,
		stats.WithLogger(logger),
		stats.WithSelectionFraction(cfg.Privacy.SelectionFraction),
		stats.WithAccountant(privacy.NewAccountant(rho)),
	)
	if err != nil {
		return err
	}
	if err := ledger.Fit(private); err != nil {
		return err
	}

	hooks := generators.LoggingHooks(logger, cfg.Generator.DataSize)
	var collector *metrics.PrometheusMetrics
	if cfg.Metrics.Enabled {
		collector, err = metrics.NewPrometheusMetrics(&cfg.Metrics, logger)
		if err != nil {
			return err
		}
		if err := collector.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
			defer cancel()
			if err := collector.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Failed to stop metrics server")
			}
		}()
		hooks = generators.Merge(hooks, collector.Hooks())
	}

	gsd, err := generators.NewGSD(schema, &cfg.Generator, hooks, logger)
	if err != nil {
		return err
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "Generating synthetic data...\n")
	fmt.Fprintf(out, "Mode: %s\n", cfg.Privacy.Mode)
	fmt.Fprintf(out, "Privacy: epsilon=%g delta=%g (rho=%.6f)\n", cfg.Privacy.Epsilon, cfg.Privacy.Delta, rho)
	fmt.Fprintf(out, "Workloads: %d\n", len(workloads))

	key := rng.New(cfg.Privacy.Seed)
	var synthetic *dataset.Dataset
	switch cfg.Privacy.Mode {
	case constants.ModeAdaptive:
		result, err := gsd.FitDPAdaptive(ctx, key, ledger, cfg.Privacy.Rounds, cfg.Privacy.Epsilon, cfg.Privacy.Delta)
		if err != nil {
			return fmt.Errorf("adaptive fit failed: %w", err)
		}
		for _, r := range result.Rounds {
			fmt.Fprintf(out, "Round %d: workload=%s max_error=%.4f avg_error=%.5f fitness=%.6g generations=%d\n",
				r.Round, r.Workload, r.Errors.MaxError, r.Errors.AverageError, r.Fitness, r.Generations)
		}
		synthetic = result.Dataset
	default:
		result, err := gsd.FitDP(ctx, key, ledger, cfg.Privacy.Epsilon, cfg.Privacy.Delta)
		if err != nil {
			return fmt.Errorf("fit failed: %w", err)
		}
		fmt.Fprintf(out, "Fitness: %.6g after %d generations\n", result.Fitness, result.Generations)
		synthetic = result.Dataset
	}

	if collector != nil {
		collector.SetRhoSpent(ledger.Accountant().Spent())
	}

	report, err := ledger.Report(synthetic)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Max error: %.4f, average error: %.5f\n", report.MaxError, report.AverageError)
	status := ledger.Accountant().Status()
	spentEps, err := ledger.Accountant().Epsilon(cfg.Privacy.Delta)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "zCDP spent: %.6f of %.6f in %d mechanism calls\n", status.ConsumedRho, status.Budget, status.TransactionCount)
	fmt.Fprintf(out, "Epsilon spent: %.4f at delta=%g\n", spentEps, cfg.Privacy.Delta)

	if len(opts.Columns) > 0 {
		synthetic, err = synthetic.Project(opts.Columns...)
		if err != nil {
			return fmt.Errorf("invalid output columns: %w", err)
		}
	}

	if err := writeDataset(ctx, cmd, cfg, synthetic); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	fmt.Fprintf(out, "\nGeneration completed successfully!\n")
	fmt.Fprintf(out, "Generated %d rows\n", synthetic.Rows())
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.CLIConfig, *logrus.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cfg.NewLogger(verbose), nil
}

func loadWorkloads(ctx context.Context, cfg *config.CLIConfig) (*domain.Schema, []*stats.Workload, *dataset.Dataset, error) {
	schema, err := cfg.BuildSchema()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid schema: %w", err)
	}
	workloads, err := cfg.BuildWorkloads(schema)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid workloads: %w", err)
	}
	if cfg.Data.Input == "" {
		return nil, nil, nil, fmt.Errorf("no input data, use --data or data.input")
	}
	data, err := readDataset(ctx, cfg.Data.Input, schema, cfg.CSVOptions())
	if err != nil {
		return nil, nil, nil, err
	}
	return schema, workloads, data, nil
}

func readDataset(ctx context.Context, path string, schema *domain.Schema, options dataset.CSVOptions) (*dataset.Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	data, err := dataset.ReadCSV(ctx, file, schema, options)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeDataset(ctx context.Context, cmd *cobra.Command, cfg *config.CLIConfig, data *dataset.Dataset) error {
	var w io.Writer = cmd.OutOrStdout()
	if cfg.Data.Output != "" && cfg.Data.Output != "-" {
		file, err := os.Create(cfg.Data.Output)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	return dataset.WriteCSV(ctx, w, data, cfg.CSVOptions())
}
