// Package broadcast serves decoded beacon events to TCP subscribers.
//
// The Server owns a registry of Sessions. Each Session has its own
// unbounded queue and delivery goroutine, so Publish never waits on a slow
// or stalled subscriber and a failed write only ever tears down the
// session it happened on.
package broadcast
