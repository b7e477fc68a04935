package app

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
)

// ShutdownTimeout is the default time to wait for workers on Stop.
const ShutdownTimeout = 10 * time.Second

// State is a scanner lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

var stateNames = map[State]string{
	StateStopped:  "Stopped",
	StateStarting: "Starting",
	StateRunning:  "Running",
	StateStopping: "Stopping",
	StateCrashed:  "Crashed",
}

// String returns a human-readable representation of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

func (s State) canMoveTo(next State) bool {
	return slices.Contains(transitions[s], next)
}

// idle reports whether nothing is running in this state.
func (s State) idle() bool {
	return s == StateStopped || s == StateCrashed
}

// EventEmitter is notified after every successful transition.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle guards the scanner state machine and tracks its worker
// goroutines so Stop can wait for them with a deadline.
type Lifecycle struct {
	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	workers sync.WaitGroup
	logger  log.Logger
	emitter EventEmitter
}

// NewLifecycle returns a lifecycle in StateStopped.
func NewLifecycle(logger log.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		state:   StateStopped,
		logger:  log.OrNoop(logger),
		emitter: emitter,
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// TransitionTo moves to next if the transition table allows it. An invalid
// move leaves the state unchanged and returns ErrNotRunning from an idle
// state, ErrAlreadyRunning otherwise.
func (l *Lifecycle) TransitionTo(next State, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !prev.canMoveTo(next) {
		l.mu.Unlock()
		if prev.idle() {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = next
	l.mu.Unlock()

	if l.emitter != nil {
		l.emitter.OnStateChange(prev, next, reason)
	}
	l.logger.Info("state transition",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
	return nil
}

// CanStart reports whether Start may be called.
func (l *Lifecycle) CanStart() bool {
	return l.State().idle()
}

// CanStop reports whether Stop may be called.
func (l *Lifecycle) CanStop() bool {
	st := l.State()
	return st == StateStarting || st == StateRunning
}

// SetCancel stores the function that cancels the run context.
func (l *Lifecycle) SetCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
}

// Cancel cancels the run context, if one was set.
func (l *Lifecycle) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Go runs fn on a tracked worker goroutine.
func (l *Lifecycle) Go(fn func()) {
	l.workers.Add(1)
	go func() {
		defer l.workers.Done()
		fn()
	}()
}

// Wait blocks until every worker started with Go has returned, or until
// timeout elapses, in which case it returns ErrShutdownTimeout.
func (l *Lifecycle) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.workers.Wait()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-done:
		return nil
	case <-t.C:
		l.logger.Warn("workers still running after shutdown timeout",
			log.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}
