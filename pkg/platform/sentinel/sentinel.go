package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: concurrent update lost an optimistic-concurrency check
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrInsufficient: donation supply cannot cover the requested consumption
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrInsufficient = errors.New("insufficient supply")
	ErrUnavailable  = errors.New("unavailable")
)
