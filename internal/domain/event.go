package domain

import "fmt"

// PacketRecord is the concatenated hex digits of one HCI event as printed
// by `hcidump --raw`, with the leading '>' marker and all whitespace removed.
type PacketRecord string

// Len returns the number of hex characters in the record.
func (r PacketRecord) Len() int {
	return len(r)
}

// BeaconEvent is one decoded iBeacon advertisement.
// It is a plain value; copies are independent and nothing mutates a
// published event.
type BeaconEvent struct {
	// UUID is the proximity UUID in 8-4-4-4-12 dashed hex form.
	UUID string

	// Major and Minor are the big-endian identifiers that follow the UUID.
	Major uint16
	Minor uint16

	// RSSI is the trailing signal byte minus 256.
	RSSI int
}

// String renders the event the way the listener prints it.
func (e BeaconEvent) String() string {
	return fmt.Sprintf("UUID: %s, Major: %d, Minor: %d, RSSI: %d", e.UUID, e.Major, e.Minor, e.RSSI)
}
