package client

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/wire"
)

var testEvent = domain.BeaconEvent{
	UUID:  "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0",
	Major: 1,
	Minor: 2,
	RSSI:  -72,
}

func writeEvents(t *testing.T, w io.Writer, evs ...domain.BeaconEvent) {
	t.Helper()
	for _, ev := range evs {
		frame, err := wire.Encode(ev)
		if !assert.NoError(t, err) {
			return
		}
		if _, err := w.Write(frame); !assert.NoError(t, err) {
			return
		}
	}
}

func TestClient_RunDeliversEventsThenEOF(t *testing.T) {
	srv, cli := net.Pipe()

	second := testEvent
	second.Minor = 3
	go func() {
		writeEvents(t, srv, testEvent, second)
		srv.Close()
	}()

	c := New(cli)
	var got []domain.BeaconEvent
	err := c.Run(context.Background(), func(ev domain.BeaconEvent) {
		got = append(got, ev)
	})

	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []domain.BeaconEvent{testEvent, second}, got)
}

func TestClient_RunShortPayload(t *testing.T) {
	srv, cli := net.Pipe()

	go func() {
		var hdr [2]byte
		binary.LittleEndian.PutUint16(hdr[:], 5)
		_, _ = srv.Write(hdr[:])
		_, _ = srv.Write([]byte(`{"UU`))
		srv.Close()
	}()

	err := New(cli).Run(context.Background(), func(domain.BeaconEvent) {
		t.Error("handler called for a truncated frame")
	})
	assert.ErrorIs(t, err, wire.ErrProtocol)
}

func TestClient_RunMalformedJSON(t *testing.T) {
	srv, cli := net.Pipe()

	go func() {
		payload := []byte("not json")
		var hdr [2]byte
		binary.LittleEndian.PutUint16(hdr[:], uint16(len(payload)))
		_, _ = srv.Write(append(hdr[:], payload...))
		srv.Close()
	}()

	err := New(cli).Run(context.Background(), func(domain.BeaconEvent) {})
	assert.ErrorIs(t, err, wire.ErrProtocol)
}

func TestClient_RunContextCancel(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- New(cli).Run(ctx, func(domain.BeaconEvent) {})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClient_NilHandler(t *testing.T) {
	_, cli := net.Pipe()
	c := New(cli)
	assert.Error(t, c.Run(context.Background(), nil))
	assert.NoError(t, c.Close())
}

func TestClient_CloseIdempotent(t *testing.T) {
	_, cli := net.Pipe()
	c := New(cli)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		writeEvents(t, conn, testEvent)
		conn.Close()
	}()

	c, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	assert.Equal(t, ln.Addr().String(), c.RemoteAddr().String())

	var got []domain.BeaconEvent
	err = c.Run(context.Background(), func(ev domain.BeaconEvent) { got = append(got, ev) })
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []domain.BeaconEvent{testEvent}, got)
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}
