package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrSchedulerRunning = errors.New("scheduler is running")
	ErrSchedulerNotIdle = errors.New("scheduler is not idle")
	ErrUnknownOutcome   = errors.New("unknown outcome")
	ErrNoStream         = errors.New("no recorded stream for market")
	ErrNotSupported     = errors.New("operation not supported by this source")
	ErrWSDisconnect     = errors.New("websocket disconnected")
)
