package constants

import "time"

// Application constants
const (
	AppName        = "gsd-cli"
	AppDescription = "Differentially private synthetic data via genetic search"
	AppVersion     = "0.1.0"

	// Environment variable prefix read by the CLI configuration layer
	EnvPrefix = "GSD"

	DefaultConfigName      = ".gsd"
	DefaultMetricsPort     = 9090
	DefaultMetricsPath     = "/metrics"
	DefaultShutdownTimeout = 5 * time.Second
)

// Optimizer defaults
const (
	DefaultDataSize       = 1000
	DefaultEliteSize      = 5
	DefaultPopulationSize = 100
	DefaultMutaRate       = 1
	DefaultMateRate       = 1
	DefaultNumGenerations = 100000
	DefaultWorkers        = 1

	// Relative improvement below which the search stops at a checkpoint.
	// Checkpoints default to every DataSize generations.
	DefaultStopEarlyThreshold = 1e-4
)

// Privacy defaults
const (
	DefaultEpsilon           = 1.0
	DefaultDelta             = 1e-6
	DefaultSelectionFraction = 0.5
	DefaultMarginalWidth     = 2
)

// Run modes
const (
	ModeOneShot  = "oneshot"
	ModeAdaptive = "adaptive"
)

// Attribute types
const (
	AttributeCategorical = "categorical"
	AttributeOrdinal     = "ordinal"
	AttributeNumerical   = "numerical"
)

// Log levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log formats
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)
