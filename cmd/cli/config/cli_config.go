package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/inferloop/gsd/internal/dataset"
	"github.com/inferloop/gsd/internal/domain"
	"github.com/inferloop/gsd/internal/generators"
	"github.com/inferloop/gsd/internal/observability/metrics"
	"github.com/inferloop/gsd/internal/stats"
	"github.com/inferloop/gsd/pkg/constants"
	"github.com/inferloop/gsd/pkg/errors"
)

type CLIConfig struct {
	Schema    []domain.Attribute       `mapstructure:"schema"`
	Workloads WorkloadConfig           `mapstructure:"workloads"`
	Generator generators.Config        `mapstructure:"generator"`
	Privacy   PrivacyConfig            `mapstructure:"privacy"`
	Data      DataConfig               `mapstructure:"data"`
	Metrics   metrics.PrometheusConfig `mapstructure:"metrics"`
	Logging   LoggingConfig            `mapstructure:"logging"`
}

// WorkloadConfig lists explicit marginal combinations. When Combinations is
// empty every K-way combination of discrete attributes is used.
type WorkloadConfig struct {
	K            int        `mapstructure:"k"`
	Combinations [][]string `mapstructure:"combinations"`
}

type PrivacyConfig struct {
	Mode              string  `mapstructure:"mode"`
	Epsilon           float64 `mapstructure:"epsilon"`
	Delta             float64 `mapstructure:"delta"`
	Rounds            int     `mapstructure:"rounds"`
	SelectionFraction float64 `mapstructure:"selection_fraction"`
	Seed              uint64  `mapstructure:"seed"`
}

type DataConfig struct {
	Input     string `mapstructure:"input"`
	Output    string `mapstructure:"output"`
	Delimiter string `mapstructure:"delimiter"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func defaults() *CLIConfig {
	return &CLIConfig{
		Workloads: WorkloadConfig{K: constants.DefaultMarginalWidth},
		Generator: *generators.DefaultConfig(),
		Privacy: PrivacyConfig{
			Mode:              constants.ModeOneShot,
			Epsilon:           constants.DefaultEpsilon,
			Delta:             constants.DefaultDelta,
			Rounds:            1,
			SelectionFraction: constants.DefaultSelectionFraction,
		},
		Data: DataConfig{
			Output:    "-",
			Delimiter: ",",
		},
		Metrics: *metrics.DefaultPrometheusConfig(),
		Logging: LoggingConfig{
			Level:  constants.LogLevelInfo,
			Format: constants.LogFormatText,
		},
	}
}

// LoadConfig reads the configuration file, environment (GSD_ prefix) and
// defaults, in that order of precedence.
func LoadConfig(cfgFile string) (*CLIConfig, error) {
	config := defaults()
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.SetConfigName(constants.DefaultConfigName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("workloads.k", config.Workloads.K)
	v.SetDefault("generator.data_size", config.Generator.DataSize)
	v.SetDefault("generator.elite_size", config.Generator.EliteSize)
	v.SetDefault("generator.population_size", config.Generator.PopulationSize)
	v.SetDefault("generator.muta_rate", config.Generator.MutaRate)
	v.SetDefault("generator.mate_rate", config.Generator.MateRate)
	v.SetDefault("generator.workers", config.Generator.Workers)
	v.SetDefault("generator.num_generations", config.Generator.NumGenerations)
	v.SetDefault("generator.stop_early", config.Generator.StopEarly)
	v.SetDefault("generator.stop_early_stride", config.Generator.StopEarlyStride)
	v.SetDefault("generator.stop_early_threshold", config.Generator.StopEarlyThreshold)
	v.SetDefault("generator.warm_start", config.Generator.WarmStart)
	v.SetDefault("privacy.mode", config.Privacy.Mode)
	v.SetDefault("privacy.epsilon", config.Privacy.Epsilon)
	v.SetDefault("privacy.delta", config.Privacy.Delta)
	v.SetDefault("privacy.rounds", config.Privacy.Rounds)
	v.SetDefault("privacy.selection_fraction", config.Privacy.SelectionFraction)
	v.SetDefault("privacy.seed", config.Privacy.Seed)
	v.SetDefault("data.output", config.Data.Output)
	v.SetDefault("data.delimiter", config.Data.Delimiter)
	v.SetDefault("metrics.enabled", config.Metrics.Enabled)
	v.SetDefault("metrics.port", config.Metrics.Port)
	v.SetDefault("metrics.path", config.Metrics.Path)
	v.SetDefault("logging.level", config.Logging.Level)
	v.SetDefault("logging.format", config.Logging.Format)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

// Validate checks everything that can be checked before data is read.
func (c *CLIConfig) Validate() error {
	if len(c.Schema) == 0 {
		return errors.ErrInvalidSchema.WithDetails("configuration has no schema attributes")
	}
	switch c.Privacy.Mode {
	case constants.ModeOneShot:
	case constants.ModeAdaptive:
		if c.Privacy.Rounds < 1 {
			return errors.ErrInvalidConfiguration.Detailf("adaptive mode needs at least one round, got %d", c.Privacy.Rounds)
		}
	default:
		return errors.ErrInvalidConfiguration.Detailf("unknown mode %q", c.Privacy.Mode)
	}
	if c.Privacy.Epsilon <= 0 {
		return errors.ErrInvalidBudget.Detailf("epsilon must be positive, got %g", c.Privacy.Epsilon)
	}
	if c.Privacy.Delta <= 0 || c.Privacy.Delta >= 1 {
		return errors.ErrInvalidBudget.Detailf("delta must be in (0, 1), got %g", c.Privacy.Delta)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return errors.ErrInvalidConfiguration.Wrap(err)
	}
	return c.Generator.Validate()
}

// BuildSchema constructs the attribute schema.
func (c *CLIConfig) BuildSchema() (*domain.Schema, error) {
	return domain.New(c.Schema...)
}

// BuildWorkloads returns one marginal workload per configured combination.
func (c *CLIConfig) BuildWorkloads(schema *domain.Schema) ([]*stats.Workload, error) {
	if len(c.Workloads.Combinations) == 0 {
		return stats.KWayWorkloads(schema, c.Workloads.K)
	}

	workloads := make([]*stats.Workload, 0, len(c.Workloads.Combinations))
	for _, combo := range c.Workloads.Combinations {
		w, err := stats.NewMarginals(schema, strings.Join(combo, ","), [][]string{combo})
		if err != nil {
			return nil, err
		}
		workloads = append(workloads, w)
	}
	return workloads, nil
}

// CSVOptions returns the dataset CSV settings.
func (c *CLIConfig) CSVOptions() dataset.CSVOptions {
	return dataset.CSVOptions{Delimiter: c.Data.Delimiter}
}

// NewLogger builds a logger from the logging section.
func (c *CLIConfig) NewLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	if c.Logging.Format == constants.LogFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, constants.DefaultConfigName+".yaml")
}
