package client

import "errors"

var (
	// ErrKernelClosed reports a kernel that refuses shell traffic.
	ErrKernelClosed = errors.New("kernel closed")

	// ErrRequestFailed wraps an error reply from a handler.
	ErrRequestFailed = errors.New("request failed")

	// ErrBadShellURL reports a shell URL without scheme and host.
	ErrBadShellURL = errors.New("invalid shell url")
)
