// README: Error taxonomy shared by the dispatch modules and the HTTP layer.
package types

import "errors"

var (
	// ErrInvalidState means the operation is illegal for the current ride or driver state.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict means a concurrent writer won; for accept it means the offer is gone.
	ErrConflict = errors.New("conflict")
	// ErrForbidden means the caller is not the actor allowed to perform the operation.
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
	// ErrUnauthenticated is terminal: callers must not retry it.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTransient covers network and liveness failures that may be retried.
	ErrTransient  = errors.New("transient failure")
	ErrBadRequest = errors.New("bad request")
)
