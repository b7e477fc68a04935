package broadcast

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/wire"
)

// SessionState is the lifecycle state of a subscriber session.
type SessionState int

const (
	// SessionConnected is the state between accept and the start of delivery.
	SessionConnected SessionState = iota
	// SessionDelivering means the delivery loop is running.
	SessionDelivering
	// SessionClosed is terminal; the socket is closed and the queue dropped.
	SessionClosed
)

// String returns a human-readable representation of the state.
func (s SessionState) String() string {
	switch s {
	case SessionConnected:
		return "Connected"
	case SessionDelivering:
		return "Delivering"
	case SessionClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// sessionConfig carries the server settings a session needs.
type sessionConfig struct {
	order        QueueOrder
	writeTimeout time.Duration
	logger       log.Logger
	onClose      func(s *Session, err error)
}

// Session owns one subscriber connection and its outbound queue.
type Session struct {
	id           string
	conn         net.Conn
	writeTimeout time.Duration
	logger       log.Logger
	onClose      func(s *Session, err error)

	mu    sync.Mutex
	queue eventQueue[domain.BeaconEvent]
	state SessionState
	err   error

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newSession(conn net.Conn, cfg sessionConfig) *Session {
	id := uuid.NewString()
	return &Session{
		id:           id,
		conn:         conn,
		writeTimeout: cfg.writeTimeout,
		logger: log.OrNoop(cfg.logger).With(
			log.String("session", id),
			log.Stringer("remote", conn.RemoteAddr()),
		),
		onClose: cfg.onClose,
		queue:   eventQueue[domain.BeaconEvent]{order: cfg.order},
		state:   SessionConnected,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the subscriber's address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Done is closed once the delivery loop has exited and the socket is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the write error that closed the session, or nil when it was
// closed deliberately or is still open.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Pending returns the number of queued, unsent events.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// Enqueue adds ev to the outbound queue without blocking. It reports
// false once the session has closed.
func (s *Session) Enqueue(ev domain.BeaconEvent) bool {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return false
	}
	s.queue.push(ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Close asks the delivery loop to stop and closes the socket so that an
// in-progress write returns. It does not wait; use Done for that.
func (s *Session) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		_ = s.conn.Close()
	})
}

func (s *Session) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// run is the delivery loop. It sends one queued event per iteration and
// ends on the first write failure or when Close is called.
func (s *Session) run() {
	defer close(s.done)

	s.mu.Lock()
	if s.state == SessionConnected {
		s.state = SessionDelivering
	}
	s.mu.Unlock()

	s.logger.Debug("delivery started")

	for {
		if s.stopping() {
			s.shutdown(nil)
			return
		}

		ev, ok := s.next()
		if !ok {
			select {
			case <-s.stop:
				s.shutdown(nil)
				return
			case <-s.wake:
				continue
			}
		}

		frame, err := wire.Encode(ev)
		if err != nil {
			s.logger.Warn("dropping unencodable event", log.Err(err), log.String("uuid", ev.UUID))
			continue
		}

		if err := s.write(frame); err != nil {
			if s.stopping() {
				err = nil
			}
			s.shutdown(err)
			return
		}
	}
}

func (s *Session) next() (domain.BeaconEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.pop()
}

// write performs a full write of frame. net.Conn.Write only returns
// without error once every byte is written.
func (s *Session) write(frame []byte) error {
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := s.conn.Write(frame)
	return err
}

// shutdown moves the session to Closed, drops anything still queued,
// closes the socket and tells the server.
func (s *Session) shutdown(err error) {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = SessionClosed
	s.err = err
	abandoned := s.queue.len()
	s.queue.reset()
	s.mu.Unlock()

	_ = s.conn.Close()

	if err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Info("subscriber disconnected", log.Err(err), log.Int("abandoned", abandoned))
	} else {
		s.logger.Debug("session closed", log.Int("abandoned", abandoned))
	}

	if s.onClose != nil {
		s.onClose(s, err)
	}
}
