package ports

import "github.com/richardtguy/ibeacon-scan-hci/internal/domain"

// Publisher fans a decoded event out to its subscribers.
// Publish must not block on any individual subscriber.
type Publisher interface {
	// Publish enqueues ev for every live subscriber and returns how many
	// subscribers received it.
	Publish(ev domain.BeaconEvent) int
}
