package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
)

var reference = domain.BeaconEvent{
	UUID:  "01020304-0506-0708-090A-0B0C0D0E0F10",
	Major: 1,
	Minor: 2,
	RSSI:  -56,
}

func TestEncode_Layout(t *testing.T) {
	b, err := Encode(reference)
	require.NoError(t, err)

	n := binary.LittleEndian.Uint16(b[:HeaderSize])
	require.Equal(t, len(b)-HeaderSize, int(n))

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b[HeaderSize:], &m))
	assert.Len(t, m, 4)
	assert.Equal(t, "01020304-0506-0708-090A-0B0C0D0E0F10", m["UUID"])
	assert.Equal(t, float64(1), m["Major"])
	assert.Equal(t, float64(2), m["Minor"])
	assert.Equal(t, float64(-56), m["RSSI"])
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	events := []domain.BeaconEvent{
		reference,
		{UUID: "00000000-0000-0000-0000-000000000000", Major: 0, Minor: 0, RSSI: -256},
		{UUID: "ffffffff-ffff-ffff-ffff-ffffffffffff", Major: 65535, Minor: 65535, RSSI: -1},
		{UUID: "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0", Major: 32768, Minor: 1, RSSI: -129},
	}

	var stream bytes.Buffer
	for _, ev := range events {
		b, err := Encode(ev)
		require.NoError(t, err)
		stream.Write(b)
	}

	for i, want := range events {
		got, err := Decode(&stream)
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want, got)
	}

	_, err := Decode(&stream)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecode_ShortPayload(t *testing.T) {
	// Length prefix says 5, stream closes after 3 payload bytes.
	r := bytes.NewReader([]byte{0x05, 0x00, '{', '"', 'U'})

	done := make(chan error, 1)
	go func() {
		_, err := Decode(r)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProtocol)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	case <-time.After(time.Second):
		t.Fatal("Decode hung on a truncated frame")
	}
}

func TestDecode_ShortHeader(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0x05}))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecode_MalformedJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"UUID":`)))

	_, err := Decode(&buf)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecode_QuotedIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	payload := `{"UUID":"01020304-0506-0708-090A-0B0C0D0E0F10","Major":"1","Minor":"2","RSSI":-56}`
	require.NoError(t, WriteFrame(&buf, []byte(payload)))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, reference, got)
}

func TestDecode_IdentifierOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"UUID":"x","Major":70000,"Minor":0,"RSSI":0}`)))

	_, err := Decode(&buf)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestEncode_OversizedPayload(t *testing.T) {
	ev := reference
	ev.UUID = strings.Repeat("A", MaxPayload)

	_, err := Encode(ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncoding))
}

func TestWriteFrame_Oversized(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Zero(t, buf.Len())
}

func TestReadFrame_MaxPayload(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{'x'}, MaxPayload)
	require.NoError(t, WriteFrame(&buf, payload))

	f, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, MaxPayload, f.Len())
}
