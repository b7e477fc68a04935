package scanner

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/richardtguy/ibeacon-scan-hci/internal/app"
	"github.com/richardtguy/ibeacon-scan-hci/internal/broadcast"
	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
)

// Stats is a snapshot of decoder counters.
type Stats struct {
	Records uint64
	Decoded uint64
	Dropped uint64
}

// Scanner decodes iBeacon advertisements from a capture source and
// broadcasts them to TCP subscribers.
// Use New() to create an instance, then Start() to begin serving.
type Scanner struct {
	config    Config
	order     broadcast.QueueOrder
	opts      options
	lifecycle *app.Lifecycle
	emitter   *eventEmitterWrapper
	logger    log.Logger

	mu        sync.RWMutex
	server    *broadcast.Server
	pipeline  *app.Pipeline
	cancel    context.CancelFunc
	done      chan struct{}
	finish    func()
	serveDone chan struct{}
	crashErr  error
}

// New creates a Scanner with the given configuration.
// The instance is created in StateStopped; call Start() to begin serving.
// Returns an error if configuration is invalid.
func New(cfg Config, opts ...Option) (*Scanner, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	order, _ := broadcast.ParseQueueOrder(cfg.QueueOrder)

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}

	return &Scanner{
		config:    cfg,
		order:     order,
		opts:      o,
		lifecycle: app.NewLifecycle(o.logger, emitter),
		emitter:   emitter,
		logger:    o.logger,
		done:      closedChan(),
	}, nil
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

// Start binds the listener and starts the accept loop and the capture
// pipeline in the background. A bind failure is returned and leaves the
// scanner Crashed.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	server := broadcast.NewServer(broadcast.Config{
		AcceptTimeout: s.config.AcceptTimeout,
		WriteTimeout:  s.config.WriteTimeout,
		QueueOrder:    s.order,
	}, s.logger, broadcast.Hooks{
		OnJoin:  s.emitter.onJoin,
		OnLeave: s.emitter.onLeave,
	})
	if err := server.Listen(s.config.Addr); err != nil {
		s.logger.Error("bind failed", log.String("addr", s.config.Addr), log.Err(err))
		s.crashErr = err
		_ = s.lifecycle.TransitionTo(app.StateCrashed, err.Error())
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.server = server
	s.pipeline = app.NewPipeline(s.opts.source, server, s.logger, s.emitter)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	s.finish = sync.OnceFunc(func() { close(done) })
	s.serveDone = make(chan struct{})
	s.crashErr = nil
	s.lifecycle.SetCancel(cancel)

	go s.serve(runCtx, server, s.serveDone)

	pipeline := s.pipeline
	s.lifecycle.Go(func() {
		err := pipeline.Run(runCtx)
		switch {
		case err == nil:
			s.logger.Info("capture ended, still serving subscribers")
		case errors.Is(err, context.Canceled):
		default:
			s.crash(err)
		}
	})

	if err := s.lifecycle.TransitionTo(app.StateRunning, "listening on "+server.Addr().String()); err != nil {
		s.logger.Error("failed to transition to running", log.Err(err))
	}

	// Parent context cancellation stops the scanner like Stop would.
	go func(done <-chan struct{}) {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-done:
		}
	}(s.done)

	return nil
}

func (s *Scanner) serve(ctx context.Context, server *broadcast.Server, done chan struct{}) {
	defer close(done)
	if err := server.Serve(ctx); err != nil {
		s.crash(err)
	}
}

// crash records err, moves to Crashed and tears everything down.
func (s *Scanner) crash(err error) {
	if st := s.lifecycle.State(); st == app.StateStopping || st == app.StateStopped {
		return
	}
	s.logger.Error("scanner crashed", log.Err(err))
	if terr := s.lifecycle.TransitionTo(app.StateCrashed, err.Error()); terr != nil {
		// Already stopping or stopped; Stop owns the teardown.
		return
	}

	s.mu.Lock()
	s.crashErr = err
	server := s.server
	finish := s.finish
	s.mu.Unlock()

	s.lifecycle.Cancel()
	go func() {
		server.Stop()
		finish()
	}()
}

// Stop stops the capture pipeline, then the accept loop, then closes
// every subscriber session. It returns ErrShutdownTimeout if the pipeline
// did not exit within ShutdownTimeout.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	if !s.lifecycle.CanStop() {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.cancel != nil {
		s.cancel()
	}
	server := s.server
	serveDone := s.serveDone
	finish := s.finish
	s.mu.Unlock()

	err := s.lifecycle.Wait(s.config.ShutdownTimeout)

	server.Stop()
	<-serveDone
	finish()

	if stats := s.Stats(); stats.Records > 0 {
		s.logger.Info("scanner stopped",
			log.Uint64("records", stats.Records),
			log.Uint64("decoded", stats.Decoded),
			log.Uint64("dropped", stats.Dropped),
		)
	}

	if err != nil {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = s.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (s *Scanner) Status() State {
	return convertState(s.lifecycle.State())
}

// Done is closed when the scanner stops serving, either through Stop or
// after a crash.
func (s *Scanner) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Err returns the error that crashed the scanner, if any.
func (s *Scanner) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.crashErr
}

// Addr returns the bound listen address, or nil when not started.
func (s *Scanner) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// Subscribers returns the number of connected subscribers.
func (s *Scanner) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return 0
	}
	return s.server.Sessions()
}

// Stats returns a snapshot of the decoder counters for the current run.
func (s *Scanner) Stats() Stats {
	s.mu.RLock()
	p := s.pipeline
	s.mu.RUnlock()
	if p == nil {
		return Stats{}
	}
	st := p.Stats()
	return Stats{
		Records: st.Records.Load(),
		Decoded: st.Decoded.Load(),
		Dropped: st.Dropped.Load(),
	}
}
