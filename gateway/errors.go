package gateway

import "errors"

// Sentinel errors for the attribute table.
var (
	ErrNotFound      = errors.New("attribute not found")
	ErrAccessDenied  = errors.New("attribute access denied")
	ErrInvalidValue  = errors.New("invalid attribute value")
	ErrEmptyName     = errors.New("attribute name is empty")
	ErrAlreadyExists = errors.New("attribute already declared")
)

// Kind is the stable error kind reported to frontends in getattr/setattr
// replies.
type Kind string

const (
	KindOK         Kind = "ok"
	AttributeError Kind = "AttributeError"
	AccessError    Kind = "AccessError"
	ValueError     Kind = "ValueError"
)

// KindOf classifies an error returned by Get or Set. nil maps to KindOK.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrAccessDenied):
		return AccessError
	case errors.Is(err, ErrInvalidValue):
		return ValueError
	default:
		return AttributeError
	}
}
