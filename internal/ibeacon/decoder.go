// Package ibeacon recognises iBeacon advertisements in reassembled HCI
// event records and extracts their identifiers.
package ibeacon

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
)

// Signature is the leading five bytes of a single-report LE Advertising
// Report event: HCI event packet (04), LE Meta event (3E), parameter
// length 42 (2A), LE Advertising Report subevent (02), one report (01).
const Signature = "043E2A0201"

// MinRecordLen is the shortest record, in hex characters, that contains
// every field up to and including the RSSI byte.
const MinRecordLen = 90

// Character offsets into the record. Two hex characters encode one byte.
const (
	uuidStart  = 46
	uuidEnd    = 78
	majorStart = 78
	majorEnd   = 82
	minorStart = 82
	minorEnd   = 86
	rssiStart  = 88
	rssiEnd    = 90
)

// Stats counts decoder outcomes. Fields are updated atomically and may be
// read while decoding continues.
type Stats struct {
	Records atomic.Uint64
	Decoded atomic.Uint64
	Dropped atomic.Uint64
}

// Decoder extracts BeaconEvents from packet records.
// It is safe for concurrent use.
type Decoder struct {
	stats Stats
}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Stats returns the decoder's counters.
func (d *Decoder) Stats() *Stats {
	return &d.stats
}

// Decode returns the beacon carried by rec. Records that are not iBeacon
// advertisements, are too short, or hold non-hex digits in a field are
// reported with ok false; that is not an error condition.
func (d *Decoder) Decode(rec domain.PacketRecord) (ev domain.BeaconEvent, ok bool) {
	d.stats.Records.Add(1)
	ev, ok = Parse(string(rec))
	if ok {
		d.stats.Decoded.Add(1)
	} else {
		d.stats.Dropped.Add(1)
	}
	return ev, ok
}

// Parse decodes a single hex record without touching any counters.
func Parse(rec string) (domain.BeaconEvent, bool) {
	if len(rec) < MinRecordLen || !strings.EqualFold(rec[:len(Signature)], Signature) {
		return domain.BeaconEvent{}, false
	}

	rawUUID := rec[uuidStart:uuidEnd]
	if _, err := uuid.Parse(rawUUID); err != nil {
		return domain.BeaconEvent{}, false
	}

	major, err := strconv.ParseUint(rec[majorStart:majorEnd], 16, 16)
	if err != nil {
		return domain.BeaconEvent{}, false
	}
	minor, err := strconv.ParseUint(rec[minorStart:minorEnd], 16, 16)
	if err != nil {
		return domain.BeaconEvent{}, false
	}
	rssi, err := strconv.ParseUint(rec[rssiStart:rssiEnd], 16, 8)
	if err != nil {
		return domain.BeaconEvent{}, false
	}

	return domain.BeaconEvent{
		UUID:  dashed(rawUUID),
		Major: uint16(major),
		Minor: uint16(minor),
		// Always offset by 256, even when the byte's high bit is clear.
		RSSI: int(rssi) - 256,
	}, true
}

// dashed groups 32 hex digits as 8-4-4-4-12, keeping the capture's case.
func dashed(hex string) string {
	var b strings.Builder
	b.Grow(36)
	b.WriteString(hex[0:8])
	b.WriteByte('-')
	b.WriteString(hex[8:12])
	b.WriteByte('-')
	b.WriteString(hex[12:16])
	b.WriteByte('-')
	b.WriteString(hex[16:20])
	b.WriteByte('-')
	b.WriteString(hex[20:32])
	return b.String()
}
