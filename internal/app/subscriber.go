package app

import (
	"context"
	"time"

	"github.com/richardtguy/ibeacon-scan-hci/pkg/client"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
)

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	// Addr is the broadcast server address (host:port).
	Addr string

	// Reconnect redials after the connection ends or fails.
	Reconnect bool

	// BackoffInitial and BackoffMax bound the delay between redials.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Subscriber runs a client against the broadcast server, optionally
// reconnecting with exponential backoff.
type Subscriber struct {
	cfg    SubscriberConfig
	logger log.Logger
	dial   func(ctx context.Context, addr string, opts ...client.Option) (*client.Client, error)
}

// NewSubscriber creates a Subscriber.
func NewSubscriber(cfg SubscriberConfig, logger log.Logger) *Subscriber {
	return &Subscriber{
		cfg:    cfg,
		logger: log.OrNoop(logger),
		dial:   client.Dial,
	}
}

// Run subscribes and calls handler for every event until ctx is cancelled.
// Without Reconnect it returns the first dial or decode error (io.EOF when
// the server closed cleanly). Cancellation returns nil.
func (s *Subscriber) Run(ctx context.Context, handler client.Handler) error {
	logger := s.logger.With(log.String("server", s.cfg.Addr))
	b := NewBackoff(s.cfg.BackoffInitial, s.cfg.BackoffMax)

	for {
		c, err := s.dial(ctx, s.cfg.Addr, client.WithLogger(logger))
		if err == nil {
			logger.Info("subscribed")
			b.Reset()
			err = c.Run(ctx, handler)
		}

		if ctx.Err() != nil {
			return nil
		}
		if !s.cfg.Reconnect {
			return err
		}

		logger.Warn("subscription lost, reconnecting",
			log.Err(err),
			log.Duration("backoff", b.Current()),
		)
		if err := b.Wait(ctx); err != nil {
			return nil
		}
	}
}
