package scanner

import (
	"net"

	"github.com/richardtguy/ibeacon-scan-hci/internal/app"
	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
)

// State is the lifecycle state of a Scanner.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// Beacon is a decoded iBeacon advertisement.
type Beacon = domain.BeaconEvent

// StateChangeEvent describes a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// SubscriberEvent describes a subscriber joining or leaving. Err is the
// write error that ended the session, nil for a deliberate close.
type SubscriberEvent struct {
	ID         string
	RemoteAddr net.Addr
	Err        error
}

// BeaconPublishedEvent reports a decoded beacon and how many subscribers
// it was queued for.
type BeaconPublishedEvent struct {
	Beacon    Beacon
	Delivered int
}

// EventHandler receives scanner notifications.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnSubscriberJoined(SubscriberEvent)
	OnSubscriberLeft(SubscriberEvent)
	OnBeaconPublished(BeaconPublishedEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// override only some callbacks.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)         {}
func (BaseEventHandler) OnSubscriberJoined(SubscriberEvent)     {}
func (BaseEventHandler) OnSubscriberLeft(SubscriberEvent)       {}
func (BaseEventHandler) OnBeaconPublished(BeaconPublishedEvent) {}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnBeacon(ev domain.BeaconEvent, delivered int) {
	if e.handler == nil {
		return
	}
	e.handler.OnBeaconPublished(BeaconPublishedEvent{Beacon: ev, Delivered: delivered})
}

func (e *eventEmitterWrapper) onJoin(id string, remote net.Addr) {
	if e.handler == nil {
		return
	}
	e.handler.OnSubscriberJoined(SubscriberEvent{ID: id, RemoteAddr: remote})
}

func (e *eventEmitterWrapper) onLeave(id string, remote net.Addr, err error) {
	if e.handler == nil {
		return
	}
	e.handler.OnSubscriberLeft(SubscriberEvent{ID: id, RemoteAddr: remote, Err: err})
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
