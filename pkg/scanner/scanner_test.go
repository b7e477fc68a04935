package scanner_test

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardtguy/ibeacon-scan-hci/internal/capture"
	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/client"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/scanner"
)

const beaconReport = `> 04 3E 2A 02 01 03 00 5A 9C 0F 8C 1B E4 1E 02 01 06 1A FF 4C
  00 02 15 E2 C5 6D B5 DF FB 48 D2 B0 60 D0 F5 A7 10 96 E0 00
  01 00 02 C5 B8
`

var wantBeacon = domain.BeaconEvent{
	UUID:  "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0",
	Major: 1,
	Minor: 2,
	RSSI:  0xB8 - 256,
}

// recordingHandler captures scanner events.
type recordingHandler struct {
	scanner.BaseEventHandler

	mu      sync.Mutex
	states  []scanner.State
	joined  []scanner.SubscriberEvent
	left    []scanner.SubscriberEvent
	beacons []scanner.BeaconPublishedEvent
}

func (h *recordingHandler) OnStateChange(ev scanner.StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, ev.Current)
}

func (h *recordingHandler) OnSubscriberJoined(ev scanner.SubscriberEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joined = append(h.joined, ev)
}

func (h *recordingHandler) OnSubscriberLeft(ev scanner.SubscriberEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left = append(h.left, ev)
}

func (h *recordingHandler) OnBeaconPublished(ev scanner.BeaconPublishedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beacons = append(h.beacons, ev)
}

func (h *recordingHandler) snapshot() (states []scanner.State, joined, left int, beacons []scanner.BeaconPublishedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]scanner.State{}, h.states...), len(h.joined), len(h.left),
		append([]scanner.BeaconPublishedEvent{}, h.beacons...)
}

// failingSource cannot be opened.
type failingSource struct{ err error }

func (f failingSource) Name() string { return "broken" }

func (f failingSource) Open(ctx context.Context) (io.ReadCloser, error) { return nil, f.err }

func testConfig() scanner.Config {
	cfg := scanner.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.AcceptTimeout = 50 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*scanner.Config)
	}{
		{"bad addr", func(c *scanner.Config) { c.Addr = "no-port" }},
		{"negative write timeout", func(c *scanner.Config) { c.WriteTimeout = -time.Second }},
		{"unknown queue order", func(c *scanner.Config) { c.QueueOrder = "random" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := scanner.New(cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestScanner_EndToEnd(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	handler := &recordingHandler{}
	s, err := scanner.New(testConfig(),
		scanner.WithLineSource(capture.NewReaderSource("pipe", pr)),
		scanner.WithEventHandler(handler),
	)
	require.NoError(t, err)
	assert.Equal(t, scanner.StateStopped, s.Status())

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, scanner.StateRunning, s.Status())
	assert.ErrorIs(t, s.Start(context.Background()), domain.ErrAlreadyRunning)

	c, err := client.Dial(context.Background(), s.Addr().String())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	events := make(chan domain.BeaconEvent, 4)
	runErr := make(chan error, 1)
	go func() {
		runErr <- c.Run(context.Background(), func(ev domain.BeaconEvent) { events <- ev })
	}()

	// The record is complete once the next marker line arrives.
	_, err = io.WriteString(pw, beaconReport+"> 04 3E\n")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, wantBeacon, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the beacon")
	}

	require.NoError(t, s.Stop())
	assert.Equal(t, scanner.StateStopped, s.Status())

	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not see the server close")
	}

	select {
	case <-s.Done():
	default:
		t.Error("Done not closed after Stop")
	}

	states, joined, left, beacons := handler.snapshot()
	assert.Equal(t, []scanner.State{
		scanner.StateStarting, scanner.StateRunning, scanner.StateStopping, scanner.StateStopped,
	}, states)
	assert.Equal(t, 1, joined)
	assert.Equal(t, 1, left)
	require.Len(t, beacons, 1)
	assert.Equal(t, 1, beacons[0].Delivered)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Decoded)
	assert.ErrorIs(t, s.Stop(), domain.ErrNotRunning)
}

func TestScanner_FiniteSourceKeepsServing(t *testing.T) {
	s, err := scanner.New(testConfig(),
		scanner.WithLineSource(capture.NewReaderSource("fixture", strings.NewReader(beaconReport))),
	)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return s.Stats().Decoded == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, scanner.StateRunning, s.Status())

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestScanner_BindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig()
	cfg.Addr = busy.Addr().String()
	s, err := scanner.New(cfg, scanner.WithLineSource(capture.NewReaderSource("empty", strings.NewReader(""))))
	require.NoError(t, err)

	require.Error(t, s.Start(context.Background()))
	assert.Equal(t, scanner.StateCrashed, s.Status())
	assert.Error(t, s.Err())
}

func TestScanner_SourceFailureCrashes(t *testing.T) {
	openErr := errors.New("hci0: no such device")
	s, err := scanner.New(testConfig(), scanner.WithLineSource(failingSource{err: openErr}))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scanner did not stop after source failure")
	}

	assert.Equal(t, scanner.StateCrashed, s.Status())
	assert.ErrorIs(t, s.Err(), openErr)
	assert.ErrorIs(t, s.Stop(), domain.ErrNotRunning)
}

func TestScanner_ParentContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s, err := scanner.New(testConfig(), scanner.WithLineSource(capture.NewReaderSource("pipe", pr)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scanner ignored parent cancellation")
	}
	require.Eventually(t, func() bool { return s.Status() == scanner.StateStopped }, 2*time.Second, 5*time.Millisecond)
}

func TestScanner_StopBeforeStart(t *testing.T) {
	s, err := scanner.New(testConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Stop(), domain.ErrNotRunning)
	assert.Nil(t, s.Addr())
	assert.Equal(t, 0, s.Subscribers())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Running", scanner.StateRunning.String())
	assert.Equal(t, "Unknown", scanner.State(42).String())
}
