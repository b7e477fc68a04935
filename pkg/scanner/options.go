package scanner

import (
	"os"

	"github.com/richardtguy/ibeacon-scan-hci/internal/capture"
	"github.com/richardtguy/ibeacon-scan-hci/internal/ports"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
)

// LineSource supplies hcidump text to the scanner. See package capture
// for the stdin, file, serial and hcidump implementations.
type LineSource = ports.LineSource

// Logger is the interface for structured logging.
type Logger = log.Logger

// Option configures optional behavior of a Scanner.
type Option func(*options)

// options holds the optional configuration for a Scanner instance.
type options struct {
	source       LineSource
	logger       Logger
	eventHandler EventHandler
}

func defaultOptions() options {
	return options{
		source: capture.NewReaderSource("stdin", os.Stdin),
		logger: log.NoopLogger{},
	}
}

// WithLineSource sets the capture source. Standard input is used when it
// is not provided.
func WithLineSource(src LineSource) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = log.OrNoop(logger)
	}
}

// WithEventHandler sets a handler for scanner events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}
