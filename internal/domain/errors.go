package domain

import "errors"

// Sentinel errors shared across modules. Callers branch with errors.Is.
var (
	// ErrDataUnavailable marks missing or stale market data. The affected
	// rule or candidate is skipped for the current run and retried on the
	// next scheduled invocation; it is never fatal.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInvalidRule marks a rule definition rejected at creation time.
	ErrInvalidRule = errors.New("invalid rule definition")

	// ErrSnapshotUnavailable is returned by discovery when no instrument
	// universe snapshot has been built yet. Requests fail fast instead of
	// returning an empty result.
	ErrSnapshotUnavailable = errors.New("instrument universe snapshot unavailable")

	// ErrDuplicatePosition is returned when a paper position is already
	// open for the same card and symbol.
	ErrDuplicatePosition = errors.New("position already open")

	// ErrRunInProgress is returned when a daily evaluation run is requested
	// while another one is still running.
	ErrRunInProgress = errors.New("evaluation run already in progress")

	// ErrNotFound marks a missing card, rule or position.
	ErrNotFound = errors.New("not found")
)
