package ports

import (
	"context"
	"io"
)

// LineSource provides the raw capture text produced by the radio subsystem.
type LineSource interface {
	// Name identifies the source in logs (e.g. "stdin", "serial:/dev/ttyUSB0").
	Name() string

	// Open starts the source and returns a stream of newline-separated text.
	// Closing the returned reader must unblock any pending Read so the
	// pipeline can stop promptly.
	Open(ctx context.Context) (io.ReadCloser, error)
}
