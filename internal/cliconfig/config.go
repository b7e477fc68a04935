package cliconfig

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/richardtguy/ibeacon-scan-hci/internal/broadcast"
	"github.com/richardtguy/ibeacon-scan-hci/internal/capture"
	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/scanner"
)

// Defaults shared by serve and listen.
const (
	DefaultHost = "localhost"
	DefaultPort = 9999
)

// Capture source kinds.
const (
	SourceStdin   = "stdin"
	SourceFile    = "file"
	SourceSerial  = "serial"
	SourceHcidump = "hcidump"
)

// Config holds CLI configuration for ibeacon.
type Config struct {
	Host string
	Port int

	Source     string
	SourcePath string
	Follow     bool
	HCI        string
	Lescan     bool

	SerialBaud     int
	SerialDataBits int
	SerialStopBits int
	SerialParity   string

	AcceptTimeout   time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	QueueOrder      string

	LogLevel string
	LogFile  string

	// ServerAddr overrides Host and Port for listen.
	ServerAddr   string
	Reconnect    bool
	ReconnectMax time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		Source:          SourceStdin,
		HCI:             capture.DefaultHCI,
		SerialBaud:      capture.DefaultBaudRate,
		SerialDataBits:  8,
		SerialStopBits:  1,
		SerialParity:    "N",
		AcceptTimeout:   broadcast.DefaultAcceptTimeout,
		ShutdownTimeout: scanner.DefaultShutdownTimeout,
		QueueOrder:      broadcast.LIFO.String(),
		LogLevel:        zerolog.InfoLevel.String(),
		ReconnectMax:    10 * time.Second,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 || c.Port > 65535 {
		return invalid("port %d out of range", c.Port)
	}

	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	switch c.Source {
	case "":
		c.Source = SourceStdin
	case SourceStdin, SourceHcidump:
	case SourceFile, SourceSerial:
		if c.SourcePath == "" {
			return invalid("source %s requires source-path", c.Source)
		}
	default:
		return invalid("unknown source %q: expected stdin, file, serial or hcidump", c.Source)
	}

	if c.HCI == "" {
		c.HCI = capture.DefaultHCI
	}

	if _, err := c.PortOptions().Normalize(); err != nil {
		return invalid("%v", err)
	}

	if c.AcceptTimeout <= 0 {
		return invalid("accept timeout must be positive")
	}
	if c.WriteTimeout < 0 {
		return invalid("write timeout must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return invalid("shutdown timeout must be positive")
	}
	if c.ReconnectMax < 0 {
		return invalid("reconnect max must not be negative")
	}

	if _, err := broadcast.ParseQueueOrder(c.QueueOrder); err != nil {
		return invalid("%v", err)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return invalid("log level %q: %v", c.LogLevel, err)
	}

	if c.ServerAddr != "" {
		if _, _, err := net.SplitHostPort(c.ServerAddr); err != nil {
			return invalid("server addr %q: %v", c.ServerAddr, err)
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Addr returns the host:port the server binds.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DialAddr returns the server address listen connects to.
func (c Config) DialAddr() string {
	if c.ServerAddr != "" {
		return c.ServerAddr
	}
	return c.Addr()
}

// PortOptions returns the serial settings.
func (c Config) PortOptions() capture.PortOptions {
	return capture.PortOptions{
		BaudRate: c.SerialBaud,
		DataBits: c.SerialDataBits,
		StopBits: c.SerialStopBits,
		Parity:   c.SerialParity,
	}
}

// ScannerConfig converts to the library configuration.
func (c Config) ScannerConfig() scanner.Config {
	return scanner.Config{
		Addr:            c.Addr(),
		AcceptTimeout:   c.AcceptTimeout,
		WriteTimeout:    c.WriteTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
		QueueOrder:      c.QueueOrder,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
