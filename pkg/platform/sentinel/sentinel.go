package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors without the store
// knowing which resource name belongs in the client-facing code.
//
// These represent factual states about rows, not validation failures:
// - ErrNotFound: row does not exist in store
// - ErrConflict: unique constraint violated (claim/policy number collision)
// - ErrStaleStatus: conditional status update matched zero rows
//
// For rule violations (illegal transition, missing fields), services build
// pkg/domain-errors values directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrStaleStatus = errors.New("stale status")
)
