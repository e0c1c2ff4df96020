package errors

// Configuration errors
var (
	ErrInvalidConfiguration = NewConfigurationError("INVALID_CONFIGURATION", "invalid configuration")
	ErrInvalidSchema        = NewConfigurationError("INVALID_SCHEMA", "invalid schema")
	ErrUnknownAttribute     = NewConfigurationError("UNKNOWN_ATTRIBUTE", "attribute not in schema")
	ErrInvalidWorkload      = NewConfigurationError("INVALID_WORKLOAD", "invalid workload")
)

// Validation errors
var (
	ErrEmptyDataset  = NewValidationError("EMPTY_DATASET", "dataset has no rows")
	ErrShapeMismatch = NewValidationError("SHAPE_MISMATCH", "dimensions do not match")
	ErrInvalidValue  = NewValidationError("INVALID_VALUE", "value outside attribute domain")
)

// Sequencing errors
var (
	ErrAlreadyFitted         = NewSequencingError("ALREADY_FITTED", "statistics already fitted")
	ErrNotFitted             = NewSequencingError("NOT_FITTED", "statistics not fitted")
	ErrNotInitialized        = NewSequencingError("NOT_INITIALIZED", "evolution state not initialized")
	ErrNotMeasured           = NewSequencingError("NOT_MEASURED", "no statistics measured")
	ErrAlreadyMeasured       = NewSequencingError("ALREADY_MEASURED", "statistics already measured")
	ErrNoUnmeasuredWorkloads = NewSequencingError("NO_UNMEASURED_WORKLOADS", "every workload has been measured")
)

// Privacy errors
var (
	ErrInvalidBudget         = NewPrivacyError("INVALID_BUDGET", "privacy budget must be positive")
	ErrPrivacyBudgetExceeded = NewPrivacyError("BUDGET_EXHAUSTED", "privacy budget exceeded")
)
