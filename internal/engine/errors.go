package engine

import "errors"

// Sentinel errors shared across the discovery pipeline. Components wrap
// these with fmt.Errorf("...: %w", Err...) so callers can unwrap with
// errors.Is while still getting contextual detail.
var (
	// ErrInvalidInput marks a malformed participant snapshot, such as a
	// participant wanting an item it owns itself. The caller must fix the
	// request; the discovery call aborts. A want whose item has no known
	// owner is not an error: the builder skips it.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCollectionUnavailable marks a failed collection-membership
	// lookup. The specific expansion is skipped; discovery continues.
	ErrCollectionUnavailable = errors.New("collection membership oracle unavailable")

	// ErrExpansionBudgetExceeded marks the global expansion cap being
	// hit mid-build. Recoverable: the partial expansion is used.
	ErrExpansionBudgetExceeded = errors.New("expansion budget exceeded")

	// ErrCircuitOpen marks an operation short-circuited by an open
	// breaker. The caller should retry after the breaker's timeout.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrBudgetExceeded marks a timeout being reached. Never returned to
	// callers directly — surfaced as DiscoveryMetadata.TimedOut.
	ErrBudgetExceeded = errors.New("timeout budget exceeded")

	// ErrInternal marks an unexpected failure. Escalated to the caller;
	// increments the relevant circuit breaker.
	ErrInternal = errors.New("internal error")
)
