package history

import "errors"

// Sentinel errors for history operations.
var (
	ErrNoSession    = errors.New("no live history session")
	ErrOutOfOrder   = errors.New("history line out of order")
	ErrInvalidQuery = errors.New("invalid history query")
	ErrStoreFailed  = errors.New("history store failed")
)
