package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and adapter backends return
// these (optionally wrapped) so services can translate them into coded domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the store
// - ErrConflict: uniqueness violated (canonical key already bound, duplicate member)
// - ErrAlreadyUsed: resource already consumed
// - ErrInvalidState: entity in wrong state for the requested transition
// - ErrUnavailable: external system or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
