package store

import "errors"

// Typed failures surfaced by Store implementations. Callers classify them
// with errors.Is; implementations wrap them with context.
var (
	// ErrPageNotFound reports that the addressed page is absent or
	// soft-deleted.
	ErrPageNotFound = errors.New("page not found")

	// ErrBlockNotFound reports that the addressed block is absent or
	// soft-deleted.
	ErrBlockNotFound = errors.New("block not found")

	// ErrReferenceNotFound reports that an anchor id (the "insert after" or
	// "move after" sibling) did not resolve to a live node in the target
	// scope. Distinct from the plain not-found errors so callers can blame
	// the right input field.
	ErrReferenceNotFound = errors.New("reference not found")

	// ErrCyclicMove reports a rejected reparenting that would place a node
	// underneath itself.
	ErrCyclicMove = errors.New("cyclic move")

	// ErrConflict reports a uniqueness violation at the persistence layer.
	ErrConflict = errors.New("conflict")
)
