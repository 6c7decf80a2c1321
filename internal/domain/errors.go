package domain

import "errors"

var (
	// ErrInvalidConfig is returned for a bad field/weight table or threshold.
	// Fatal at startup.
	ErrInvalidConfig = errors.New("invalid matching configuration")

	// ErrSourceUnavailable is returned when an item source cannot be read.
	// Fatal to the pipeline run.
	ErrSourceUnavailable = errors.New("item source unavailable")

	// ErrMalformedRecord is returned for a record missing its identifier.
	// The record is skipped and counted; the run continues.
	ErrMalformedRecord = errors.New("malformed item record")

	// ErrEmbeddingFailed is returned by the embedding client after its retry
	// budget is exhausted. The pipeline degrades the field to no signal.
	ErrEmbeddingFailed = errors.New("embedding request failed")

	// ErrRunInProgress is returned when a matching run is requested while
	// another is still running.
	ErrRunInProgress = errors.New("matching run already in progress")

	// ErrNoResults is returned when results are requested before any run
	// has completed.
	ErrNoResults = errors.New("no matching results available")
)
