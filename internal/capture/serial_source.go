package capture

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
)

// DefaultSerialReadTimeout bounds each read on the serial port so a closed
// source is noticed even when the radio is silent.
const DefaultSerialReadTimeout = 500 * time.Millisecond

// SerialPort is the subset of serial.Port used by SerialSource.
type SerialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// PortOpener opens a serial port. serialOpen is the real implementation;
// tests substitute their own.
type PortOpener func(path string, mode *serial.Mode) (SerialPort, error)

func serialOpen(path string, mode *serial.Mode) (SerialPort, error) {
	return serial.Open(path, mode)
}

// SerialSource reads hcidump-formatted text from a serial device, such as
// a sniffer dongle or a remote host piping hcidump over a UART.
type SerialSource struct {
	Path        string
	Options     PortOptions
	ReadTimeout time.Duration

	open PortOpener
}

// NewSerialSource creates a source for the device at path.
func NewSerialSource(path string, opts PortOptions) *SerialSource {
	return &SerialSource{Path: path, Options: opts, open: serialOpen}
}

func (s *SerialSource) Name() string { return "serial:" + s.Path }

func (s *SerialSource) Open(ctx context.Context) (io.ReadCloser, error) {
	mode, err := s.Options.SerialMode()
	if err != nil {
		return nil, err
	}
	open := s.open
	if open == nil {
		open = serialOpen
	}
	port, err := open(s.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", s.Path, err)
	}

	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultSerialReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &serialReader{port: port}, nil
}

// serialReader hides read timeouts from bufio.Scanner, which treats
// repeated empty reads as an error.
type serialReader struct {
	port   SerialPort
	closed atomic.Bool
}

func (r *serialReader) Read(p []byte) (int, error) {
	for {
		if r.closed.Load() {
			return 0, domain.ErrSourceClosed
		}
		n, err := r.port.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (r *serialReader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.port.Close()
}
