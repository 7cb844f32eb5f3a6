package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoSeeds is returned when no seed url was given on the command line,
	// in the project file or through --seeds-file.
	ErrNoSeeds = errors.New("no seed urls specified: pass urls as arguments or list them under seeds in the config file")

	// ErrNoTerms is returned when the relevance vocabulary is empty.
	ErrNoTerms = errors.New("no relevance terms specified: use --term at least once")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid worker count: must be positive")

	// ErrInvalidTargetHits is returned when the hit target is not positive.
	ErrInvalidTargetHits = errors.New("invalid hit target: must be positive")

	// ErrInvalidDomainVisitCap is returned when the per-domain cap is not positive.
	ErrInvalidDomainVisitCap = errors.New("invalid domain visit cap: must be positive")

	// ErrInvalidRescoreBatch is returned when the rescore batch is not positive.
	ErrInvalidRescoreBatch = errors.New("invalid rescore batch: must be positive")

	// ErrInvalidMaxRedirects is returned when the redirect limit is negative.
	ErrInvalidMaxRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrInvalidTimeout is returned when a request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBackoff is returned when the idle backoff is negative.
	ErrInvalidBackoff = errors.New("invalid backoff: must be non-negative")

	// ErrInvalidRate is returned when the global request rate is negative.
	ErrInvalidRate = errors.New("invalid request rate: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is not positive.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be positive")

	// ErrInvalidChunkSize is returned when the TREC chunk size is not positive.
	ErrInvalidChunkSize = errors.New("invalid chunk size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
