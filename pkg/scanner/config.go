package scanner

import (
	"fmt"
	"net"
	"time"

	"github.com/richardtguy/ibeacon-scan-hci/internal/broadcast"
	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
)

// Default configuration values.
const (
	DefaultAddr            = "localhost:9999"
	DefaultAcceptTimeout   = broadcast.DefaultAcceptTimeout
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds Scanner settings.
type Config struct {
	// Addr is the host:port the broadcast server binds.
	Addr string

	// AcceptTimeout bounds each accept wait.
	AcceptTimeout time.Duration

	// WriteTimeout is the per-frame write deadline for subscribers.
	// Zero disables it.
	WriteTimeout time.Duration

	// ShutdownTimeout bounds how long Stop waits for the capture pipeline.
	ShutdownTimeout time.Duration

	// QueueOrder is "lifo" (default) or "fifo".
	QueueOrder string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Addr:            DefaultAddr,
		AcceptTimeout:   DefaultAcceptTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		QueueOrder:      broadcast.LIFO.String(),
	}
}

// SetDefaults fills zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = DefaultAcceptTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.QueueOrder == "" {
		c.QueueOrder = broadcast.LIFO.String()
	}
}

// Validate reports configuration errors wrapped in domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("%w: addr %q: %v", domain.ErrInvalidConfig, c.Addr, err)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("%w: write timeout must not be negative", domain.ErrInvalidConfig)
	}
	if _, err := broadcast.ParseQueueOrder(c.QueueOrder); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	return nil
}
