package kernel

import "errors"

var (
	// ErrRestartRequested is returned by Serve after a shutdown_request
	// asked for a fresh kernel.
	ErrRestartRequested = errors.New("restart requested")

	// ErrInvalidHistoryRequest reports an unknown hist_access_type.
	ErrInvalidHistoryRequest = errors.New("invalid history request")
)
