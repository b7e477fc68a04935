package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
)

// MaxPayload is the largest payload a 16-bit length prefix can describe.
const MaxPayload = 1<<16 - 1

// HeaderSize is the length of the frame prefix in bytes.
const HeaderSize = 2

var (
	// ErrEncoding is returned when an event cannot be framed.
	ErrEncoding = errors.New("wire: encoding error")

	// ErrProtocol is returned when the peer sends a truncated or
	// malformed frame.
	ErrProtocol = errors.New("wire: protocol error")
)

// Event is the value carried by every frame.
type Event = domain.BeaconEvent

// Frame is one length-prefixed unit on the wire.
type Frame struct {
	Payload []byte
}

// Len returns the payload length carried in the prefix.
func (f Frame) Len() int {
	return len(f.Payload)
}

// message fixes the JSON key names on the wire.
type message struct {
	UUID  string  `json:"UUID"`
	Major wireInt `json:"Major"`
	Minor wireInt `json:"Minor"`
	RSSI  int     `json:"RSSI"`
}

// wireInt is written as a JSON number but also read from a quoted decimal
// string, which older producers emitted for Major and Minor.
type wireInt uint16

func (w *wireInt) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid identifier %s: %w", b, err)
	}
	*w = wireInt(n)
	return nil
}

// Marshal returns the JSON payload for ev without a length prefix.
func Marshal(ev domain.BeaconEvent) ([]byte, error) {
	b, err := json.Marshal(message{
		UUID:  ev.UUID,
		Major: wireInt(ev.Major),
		Minor: wireInt(ev.Minor),
		RSSI:  ev.RSSI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return b, nil
}

// Unmarshal parses a JSON payload into an event.
func Unmarshal(payload []byte) (domain.BeaconEvent, error) {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		return domain.BeaconEvent{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return domain.BeaconEvent{
		UUID:  m.UUID,
		Major: uint16(m.Major),
		Minor: uint16(m.Minor),
		RSSI:  m.RSSI,
	}, nil
}

// Encode returns the complete frame for ev.
func Encode(ev domain.BeaconEvent) ([]byte, error) {
	payload, err := Marshal(ev)
	if err != nil {
		return nil, err
	}
	return appendFrame(nil, payload)
}

// Decode reads exactly one frame from r and parses its payload.
// A stream that ends cleanly before a new frame returns io.EOF; one that
// ends inside a frame returns an error wrapping ErrProtocol.
func Decode(r io.Reader) (domain.BeaconEvent, error) {
	f, err := ReadFrame(r)
	if err != nil {
		return domain.BeaconEvent{}, err
	}
	return Unmarshal(f.Payload)
}

// WriteFrame writes payload to w with its length prefix in a single Write.
func WriteFrame(w io.Writer, payload []byte) error {
	b, err := appendFrame(nil, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadFrame reads one length prefix and the payload it describes.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("%w: read length: %w", ErrProtocol, err)
	}

	n := binary.LittleEndian.Uint16(hdr[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("%w: read %d byte payload: %w", ErrProtocol, n, err)
	}
	return Frame{Payload: payload}, nil
}

func appendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrEncoding, len(payload), MaxPayload)
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(payload)))
	return append(dst, payload...), nil
}
