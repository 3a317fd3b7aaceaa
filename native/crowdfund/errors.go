package crowdfund

import "errors"

var (
	// ErrUnauthorized is returned when the caller lacks the role an operation
	// requires (operator or pool creator).
	ErrUnauthorized = errors.New("crowdfund: unauthorized caller")
	// ErrInvalidInput covers malformed arguments: bad caps, non-positive
	// amounts, over-long descriptions, unknown asset symbols.
	ErrInvalidInput = errors.New("crowdfund: invalid input")
	// ErrWrongPhase is returned when the operation is not valid for the
	// current pool or listing status.
	ErrWrongPhase = errors.New("crowdfund: wrong phase")
	// ErrCapacityExceeded is returned when a contribution would push the
	// nominal total over the hard cap.
	ErrCapacityExceeded = errors.New("crowdfund: hard cap exceeded")
	// ErrInvalidState marks internally inconsistent or degenerate state, such
	// as a zero computed share.
	ErrInvalidState = errors.New("crowdfund: invalid state")
	// ErrExternalCall is returned when the asset contract or the trade venue
	// rejects a call. It is always propagated, never swallowed.
	ErrExternalCall = errors.New("crowdfund: external call failed")
	// ErrPoolNotFound is returned for unknown pool identifiers.
	ErrPoolNotFound = errors.New("crowdfund: pool not found")
	// ErrNoContribution is returned when the caller has no outstanding
	// contribution in the pool.
	ErrNoContribution = errors.New("crowdfund: no contribution recorded")
)
