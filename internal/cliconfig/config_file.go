package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/richardtguy/ibeacon-scan-hci/internal/capture"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Server  string `toml:"server"`
	Capture struct {
		Source string `toml:"source"`
		Path   string `toml:"path"`
		Follow *bool  `toml:"follow"`
		HCI    string `toml:"hci"`
		Lescan *bool  `toml:"lescan"`
	} `toml:"capture"`
	Serial          capture.PortOptions `toml:"serial"`
	AcceptTimeout   string              `toml:"accept_timeout"`
	WriteTimeout    string              `toml:"write_timeout"`
	ShutdownTimeout string              `toml:"shutdown_timeout"`
	QueueOrder      string              `toml:"queue_order"`
	LogLevel        string              `toml:"log_level"`
	LogFile         string              `toml:"log_file"`
	Reconnect       *bool               `toml:"reconnect"`
	ReconnectMax    string              `toml:"reconnect_max"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.ibeacon/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".ibeacon", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("host", fc.Host, &cfg.Host)
	s.setInt("port", fc.Port, &cfg.Port)
	s.setString("server", fc.Server, &cfg.ServerAddr)

	s.setString("source", fc.Capture.Source, &cfg.Source)
	s.setString("source-path", fc.Capture.Path, &cfg.SourcePath)
	s.setBool("follow", fc.Capture.Follow, &cfg.Follow)
	s.setString("hci", fc.Capture.HCI, &cfg.HCI)
	s.setBool("lescan", fc.Capture.Lescan, &cfg.Lescan)

	s.setInt("serial-baud", fc.Serial.BaudRate, &cfg.SerialBaud)
	s.setInt("serial-data-bits", fc.Serial.DataBits, &cfg.SerialDataBits)
	s.setInt("serial-stop-bits", fc.Serial.StopBits, &cfg.SerialStopBits)
	s.setString("serial-parity", fc.Serial.Parity, &cfg.SerialParity)

	if err := s.setDuration("accept-timeout", fc.AcceptTimeout, &cfg.AcceptTimeout); err != nil {
		return err
	}
	if err := s.setDuration("write-timeout", fc.WriteTimeout, &cfg.WriteTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := s.setDuration("reconnect-max", fc.ReconnectMax, &cfg.ReconnectMax); err != nil {
		return err
	}

	s.setString("queue-order", fc.QueueOrder, &cfg.QueueOrder)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)
	s.setBool("reconnect", fc.Reconnect, &cfg.Reconnect)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
