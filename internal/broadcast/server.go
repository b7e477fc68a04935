package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
)

// DefaultAcceptTimeout bounds each Accept call so the loop re-checks the
// stop signal at least this often.
const DefaultAcceptTimeout = 5 * time.Second

// Config holds broadcast server settings.
type Config struct {
	// AcceptTimeout is the deadline applied to each Accept call.
	AcceptTimeout time.Duration

	// WriteTimeout is the per-frame write deadline. Zero means none.
	WriteTimeout time.Duration

	// QueueOrder selects which queued event a session sends next.
	QueueOrder QueueOrder
}

// Hooks are optional callbacks fired when subscribers come and go.
// They run on the accept goroutine (join) or the session goroutine (leave)
// and must not block.
type Hooks struct {
	OnJoin  func(id string, remote net.Addr)
	OnLeave func(id string, remote net.Addr, err error)
}

// Server accepts subscriber connections and fans every published event
// out to all live sessions.
type Server struct {
	cfg    Config
	logger log.Logger
	hooks  Hooks

	mu       sync.RWMutex
	sessions map[string]*Session
	ln       net.Listener
	served   bool

	closing    atomic.Bool
	stop       chan struct{}
	stopOnce   sync.Once
	acceptDone chan struct{}
	sessionWG  sync.WaitGroup
}

// NewServer creates a server. Call Listen then Serve.
func NewServer(cfg Config, logger log.Logger, hooks Hooks) *Server {
	if cfg.AcceptTimeout <= 0 {
		cfg.AcceptTimeout = DefaultAcceptTimeout
	}
	return &Server{
		cfg:        cfg,
		logger:     log.OrNoop(logger),
		hooks:      hooks,
		sessions:   make(map[string]*Session),
		stop:       make(chan struct{}),
		acceptDone: make(chan struct{}),
	}
}

// Listen binds the TCP listener on addr.
func (s *Server) Listen(addr string) error {
	if s.closing.Load() {
		return domain.ErrNotRunning
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("listening", log.Stringer("addr", ln.Addr()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Sessions returns the number of registered sessions.
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Serve runs the accept loop until Stop is called or ctx is cancelled.
// It returns nil on shutdown and the accept error otherwise.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	if ln == nil {
		s.mu.Unlock()
		return errors.New("broadcast: Serve called before Listen")
	}
	if s.served {
		s.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	s.served = true
	closing := s.closing.Load()
	s.mu.Unlock()

	defer close(s.acceptDone)
	if closing {
		return nil
	}

	type deadliner interface {
		SetDeadline(t time.Time) error
	}
	dl, _ := ln.(deadliner)

	for {
		if s.shouldStop(ctx) {
			return nil
		}

		if dl != nil {
			if err := dl.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout)); err != nil {
				if s.shouldStop(ctx) {
					return nil
				}
				return fmt.Errorf("set accept deadline: %w", err)
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if s.shouldStop(ctx) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", log.Err(err))
			return fmt.Errorf("accept: %w", err)
		}

		s.addSession(conn)
	}
}

func (s *Server) shouldStop(ctx context.Context) bool {
	if s.closing.Load() {
		return true
	}
	select {
	case <-ctx.Done():
		return true
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Server) addSession(conn net.Conn) {
	sess := newSession(conn, sessionConfig{
		order:        s.cfg.QueueOrder,
		writeTimeout: s.cfg.WriteTimeout,
		logger:       s.logger,
		onClose:      s.removeSession,
	})

	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[sess.ID()] = sess
	s.sessionWG.Add(1)
	count := len(s.sessions)
	s.mu.Unlock()

	s.logger.Info("subscriber connected",
		log.String("session", sess.ID()),
		log.Stringer("remote", conn.RemoteAddr()),
		log.Int("sessions", count),
	)

	if s.hooks.OnJoin != nil {
		s.hooks.OnJoin(sess.ID(), conn.RemoteAddr())
	}

	go func() {
		defer s.sessionWG.Done()
		sess.run()
	}()
}

func (s *Server) removeSession(sess *Session, err error) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()

	if s.hooks.OnLeave != nil {
		s.hooks.OnLeave(sess.ID(), sess.RemoteAddr(), err)
	}
}

func (s *Server) snapshot() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Publish enqueues ev on every live session and returns how many accepted
// it. It never waits on a session's socket.
func (s *Server) Publish(ev domain.BeaconEvent) int {
	n := 0
	for _, sess := range s.snapshot() {
		if sess.Enqueue(ev) {
			n++
		}
	}
	return n
}

// Stop closes the listener, waits for the accept loop, then closes every
// session and waits for their delivery loops. It is safe to call more
// than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closing.Store(true)
		ln := s.ln
		served := s.served
		s.mu.Unlock()

		close(s.stop)
		if ln != nil {
			_ = ln.Close()
		}
		if served {
			<-s.acceptDone
		}

		sessions := s.snapshot()
		for _, sess := range sessions {
			sess.Close()
		}
		s.sessionWG.Wait()

		s.logger.Info("broadcast server stopped", log.Int("closed_sessions", len(sessions)))
	})
}
