package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Ledger adapters return these
// (optionally wrapped) so services can translate them into domain errors.
//
// These describe the state of a ledger account, not validation failures:
// - ErrNotFound: no account is anchored at the address
// - ErrAlreadyExists: create-if-absent found the address occupied
// - ErrUnavailable: the ledger could not be reached or timed out
// - ErrConflict: a conditional write found the account changed since it was read
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("unavailable")
	ErrConflict      = errors.New("conflict")
)
