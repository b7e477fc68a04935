package broadcast

import (
	"fmt"
	"strings"
)

// QueueOrder selects which queued event a session sends next.
type QueueOrder int

const (
	// LIFO sends the most recently queued event first. Under backlog older
	// events wait behind newer ones and may never be sent before the
	// session closes. This is the historical behaviour and the default.
	LIFO QueueOrder = iota

	// FIFO sends events in arrival order.
	FIFO
)

// String returns the configuration spelling of the order.
func (o QueueOrder) String() string {
	switch o {
	case LIFO:
		return "lifo"
	case FIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// ParseQueueOrder parses "lifo" or "fifo" (case-insensitive).
func ParseQueueOrder(s string) (QueueOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lifo":
		return LIFO, nil
	case "fifo":
		return FIFO, nil
	default:
		return LIFO, fmt.Errorf("unknown queue order %q: expected lifo or fifo", s)
	}
}

// eventQueue is an unbounded slice-backed queue popped from either end.
// Callers hold the session lock.
type eventQueue[T any] struct {
	items []T
	order QueueOrder
}

func (q *eventQueue[T]) push(v T) {
	q.items = append(q.items, v)
}

func (q *eventQueue[T]) pop() (T, bool) {
	var zero T
	n := len(q.items)
	if n == 0 {
		return zero, false
	}
	var v T
	if q.order == FIFO {
		v = q.items[0]
		q.items[0] = zero
		q.items = q.items[1:]
	} else {
		v = q.items[n-1]
		q.items[n-1] = zero
		q.items = q.items[:n-1]
	}
	return v, true
}

func (q *eventQueue[T]) len() int {
	return len(q.items)
}

func (q *eventQueue[T]) reset() {
	q.items = nil
}
