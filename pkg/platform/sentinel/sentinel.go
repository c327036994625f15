package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about stored records, not validation
// failures:
//   - ErrNotFound: record does not exist in the store
//   - ErrAlreadyUsed: a uniqueness constraint was hit (duplicate idempotency
//     key, second settlement for a fund, duplicate due for a cycle)
//   - ErrVersionMismatch: an optimistic compare-and-swap lost the race
//   - ErrInvalidState: record in wrong state for the requested mutation
//   - ErrUnavailable: backing store temporarily unreachable
//
// For validation of caller input, use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyUsed     = errors.New("already used")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrInvalidState    = errors.New("invalid state")
	ErrUnavailable     = errors.New("unavailable")
)
