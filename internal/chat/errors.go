// Package chat implements the coordinator for room membership and message
// operations, plus the pure role/permission rules it relies on.
package chat

import "errors"

// Domain error taxonomy. Callers classify with errors.Is and translate into
// protocol-specific responses; messages wrapped around these sentinels are
// safe to show to users.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)
