// Package client subscribes to an ibeacon broadcast server and hands each
// decoded event to a caller-supplied handler.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/wire"
)

// DefaultPort is the port the server listens on unless configured otherwise.
const DefaultPort = 9999

// Handler receives each decoded event on the client's read goroutine.
type Handler func(ev domain.BeaconEvent)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by the client.
func WithLogger(l log.Logger) Option {
	return func(c *Client) {
		c.logger = log.OrNoop(l)
	}
}

// Client is a connected subscriber.
type Client struct {
	conn   net.Conn
	logger log.Logger

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, opts...), nil
}

// New wraps an established connection.
func New(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn:   conn,
		logger: log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Run decodes frames until the connection ends and calls handler for each
// event. It returns io.EOF when the server closes cleanly on a frame
// boundary, an error wrapping wire.ErrProtocol for a malformed or short
// frame, and ctx.Err() after cancellation. Run closes the connection
// before returning.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("client: nil handler")
	}

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer c.Close()

	var received uint64
	for {
		ev, err := wire.Decode(c.conn)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.logger.Debug("subscription ended",
				log.Stringer("server", c.conn.RemoteAddr()),
				log.Uint64("received", received),
				log.Err(err),
			)
			return err
		}
		received++
		handler(ev)
	}
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
