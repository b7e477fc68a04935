package domain

import "errors"

// Sentinel errors returned by the scanner and its components.
// Callers check them with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("ibeacon: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("ibeacon: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("ibeacon: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("ibeacon: invalid configuration")

	// ErrSourceClosed is returned by a capture source read after Close.
	ErrSourceClosed = errors.New("ibeacon: capture source closed")
)
