// Package sentinel holds the storage facts shared by every backend.
//
// Correspondence, notice, template and audit stores return these (usually
// wrapped with the record id) and services map them onto coded domain errors.
// Input problems never surface here; they are rejected with pkg/domain-errors
// before a store is touched.
package sentinel

import "errors"

var (
	// ErrNotFound: no record with the requested id or key.
	ErrNotFound = errors.New("not found")
	// ErrConflict: the write lost to another one, such as a second pickup of
	// the same correspondence or a reused pending protocol.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: the record exists but cannot take this transition.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: the backend could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
