package protocol

import "errors"

// Sentinel errors for envelope construction and decoding.
var (
	ErrInvalidContent = errors.New("invalid content")
	ErrUnknownType    = errors.New("unknown message type")
	ErrMissingHeader  = errors.New("missing header")
)
