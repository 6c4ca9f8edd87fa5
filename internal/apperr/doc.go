// Package apperr classifies messenger errors into a small set of kinds.
//
// Core operations return *Error values whose Kind is Validation, NotFound,
// AlreadyExists or Store. errors.Is matches any *Error of the same kind, so
// callers test against the sentinels:
//
//	if errors.Is(err, apperr.ErrNotFound) { ... }
package apperr
