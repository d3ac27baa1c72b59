// Package apperr defines the sentinel errors shared across the canvas service.
// Callers wrap them with fmt.Errorf("%w: ...") and match with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidKey = errors.New("invalid document key")

	// Model errors.
	ErrUnknownBlockType = errors.New("unknown block type")
	ErrUnknownNode      = errors.New("unknown node")
	ErrUnknownField     = errors.New("unknown field")
	ErrInvalidValue     = errors.New("invalid field value")
	ErrSelfLoop         = errors.New("self-loop not allowed")
	ErrDuplicateEdge    = errors.New("edge already exists")

	// Persistence errors.
	ErrStorage           = errors.New("storage error")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrSaveInFlight      = errors.New("save already in progress")
)
