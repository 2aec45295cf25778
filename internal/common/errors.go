// Package common holds error values shared across layers. Repositories and
// services return these sentinels so the HTTP layer can map them to status
// codes without knowing where they originated.
package common

import "errors"

var (
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrorBadInput      = errors.New("bad input")
	ErrorMisconfigured = errors.New("misconfigured")
)
