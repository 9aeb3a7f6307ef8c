package heartbeat

import "errors"

var (
	ErrKernelDead   = errors.New("kernel is dead")
	ErrBadEcho      = errors.New("unexpected heartbeat echo")
	ErrNotListening = errors.New("heartbeat server is not listening")
)
