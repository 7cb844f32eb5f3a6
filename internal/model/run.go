package model

import "time"

// RunStatus describes how a crawl run ended.
type RunStatus string

const (
	// RunStatusRunning is stored while the crawl is in progress.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted means the hit target was reached or the frontier
	// drained.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusInterrupted means the run was cancelled or failed; the
	// pages stored for it are the partial result.
	RunStatusInterrupted RunStatus = "interrupted"
)

// RunSummary records one crawl invocation.
type RunSummary struct {
	// ID uniquely identifies the run (a UUID).
	ID string `json:"id"`

	// StartedAt is when the crawl started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is zero while the run is in progress.
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// Seeds are the canonical seed URLs.
	Seeds []string `json:"seeds"`

	// Terms is the relevance vocabulary as given by the user.
	Terms []string `json:"terms"`

	// TargetHits is the requested number of pages.
	TargetHits int `json:"target_hits"`

	// Workers is the size of the worker pool.
	Workers int `json:"workers"`

	// Hits is the number of pages actually crawled.
	Hits int `json:"hits"`

	// Failures is the number of rejected URLs.
	Failures int `json:"failures"`

	// Status tells how the run ended.
	Status RunStatus `json:"status"`

	// Error holds the terminating error for interrupted runs.
	Error string `json:"error,omitempty"`
}

// Duration returns the wall time of a finished run, or zero.
func (r *RunSummary) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
