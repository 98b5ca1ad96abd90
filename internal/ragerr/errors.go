// Package ragerr defines the error taxonomy shared by the index, the
// embedding client and the pipelines.
//
// Packages wrap one of the sentinels with detail:
//
//	fmt.Errorf("%w: query text exceeds %d chars", ragerr.ErrInvalidInput, max)
//
// and callers classify with errors.Is or KindOf.
package ragerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput means caller-supplied data violates a contract. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient means the embedding service stayed unavailable for the
	// whole retry budget.
	ErrTransient = errors.New("transient service error")

	// ErrConsistency means an internal invariant between index and store is broken.
	ErrConsistency = errors.New("consistency violation")

	// ErrNotFound means a lookup missed.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch means a vector's width differs from the configured
	// embedding width. Both the embedding client and the index report it.
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrInvalidInput)
)

// Kind names an error class.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindTransient
	KindConsistency
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindTransient:
		return "transient"
	case KindConsistency:
		return "consistency_violation"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// KindOf classifies err. InvalidInput wins over the other kinds when an
// error wraps more than one sentinel.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrConsistency):
		return KindConsistency
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}
