package router

import "errors"

// Sentinel errors for shell dispatch and channel management.
var (
	ErrClosed           = errors.New("router closed")
	ErrCrashed          = errors.New("handler crashed")
	ErrDuplicateRequest = errors.New("duplicate request id")
	ErrUnknownHandler   = errors.New("no handler for message type")
	ErrNoKeyboard       = errors.New("no stdin channel for frontend")
	ErrUnexpectedReply  = errors.New("unexpected input reply")
	ErrAlreadyAttached  = errors.New("identity already attached")
)
