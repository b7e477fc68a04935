package app

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/wire"
)

// flakyServer accepts connections, sends one event on each and hangs up.
func flakyServer(t *testing.T) (addr string, accepted *atomic.Int32) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	accepted = &atomic.Int32{}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			n := accepted.Add(1)
			frame, _ := wire.Encode(domain.BeaconEvent{UUID: "U", Minor: uint16(n)})
			_, _ = conn.Write(frame)
			conn.Close()
		}
	}()
	return ln.Addr().String(), accepted
}

func TestSubscriber_NoReconnectReturnsEOF(t *testing.T) {
	addr, accepted := flakyServer(t)

	var got []domain.BeaconEvent
	s := NewSubscriber(SubscriberConfig{Addr: addr}, &mockLogger{})
	err := s.Run(context.Background(), func(ev domain.BeaconEvent) { got = append(got, ev) })

	if !errors.Is(err, io.EOF) {
		t.Fatalf("Run() = %v, want io.EOF", err)
	}
	if len(got) != 1 || got[0].Minor != 1 {
		t.Errorf("events = %+v, want one with Minor 1", got)
	}
	if accepted.Load() != 1 {
		t.Errorf("server accepted %d connections, want 1", accepted.Load())
	}
}

func TestSubscriber_ReconnectsUntilCancelled(t *testing.T) {
	addr, accepted := flakyServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []uint16
	)
	s := NewSubscriber(SubscriberConfig{
		Addr:           addr,
		Reconnect:      true,
		BackoffInitial: 5 * time.Millisecond,
		BackoffMax:     10 * time.Millisecond,
	}, &mockLogger{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, func(ev domain.BeaconEvent) {
			mu.Lock()
			got = append(got, ev.Minor)
			n := len(got)
			mu.Unlock()
			if n == 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
	}

	if accepted.Load() < 3 {
		t.Errorf("server accepted %d connections, want at least 3", accepted.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) < 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("events = %v, want 1, 2, 3", got)
	}
}

func TestSubscriber_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := NewSubscriber(SubscriberConfig{Addr: addr}, nil)
	if err := s.Run(context.Background(), func(domain.BeaconEvent) {}); err == nil {
		t.Fatal("Run() = nil, want dial error")
	}
}

func TestSubscriber_CancelDuringBackoff(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := NewSubscriber(SubscriberConfig{
		Addr:           addr,
		Reconnect:      true,
		BackoffInitial: time.Hour,
		BackoffMax:     time.Hour,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := s.Run(ctx, func(domain.BeaconEvent) {}); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Run() slept through cancellation")
	}
}
