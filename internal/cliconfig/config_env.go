package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (IBEACON_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("host", os.Getenv("IBEACON_HOST"), &cfg.Host)
	s.setString("source", os.Getenv("IBEACON_SOURCE"), &cfg.Source)
	s.setString("source-path", os.Getenv("IBEACON_SOURCE_PATH"), &cfg.SourcePath)
	s.setString("hci", os.Getenv("IBEACON_HCI"), &cfg.HCI)
	s.setString("serial-parity", os.Getenv("IBEACON_SERIAL_PARITY"), &cfg.SerialParity)
	s.setString("queue-order", os.Getenv("IBEACON_QUEUE_ORDER"), &cfg.QueueOrder)
	s.setString("log-level", os.Getenv("IBEACON_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-file", os.Getenv("IBEACON_LOG_FILE"), &cfg.LogFile)
	s.setString("server", os.Getenv("IBEACON_SERVER_ADDR"), &cfg.ServerAddr)

	if err := s.setIntFromString("port", os.Getenv("IBEACON_PORT"), &cfg.Port); err != nil {
		return err
	}
	if err := s.setIntFromString("serial-baud", os.Getenv("IBEACON_SERIAL_BAUD"), &cfg.SerialBaud); err != nil {
		return err
	}
	if err := s.setIntFromString("serial-data-bits", os.Getenv("IBEACON_SERIAL_DATA_BITS"), &cfg.SerialDataBits); err != nil {
		return err
	}
	if err := s.setIntFromString("serial-stop-bits", os.Getenv("IBEACON_SERIAL_STOP_BITS"), &cfg.SerialStopBits); err != nil {
		return err
	}

	if err := s.setDuration("accept-timeout", os.Getenv("IBEACON_ACCEPT_TIMEOUT"), &cfg.AcceptTimeout); err != nil {
		return err
	}
	if err := s.setDuration("write-timeout", os.Getenv("IBEACON_WRITE_TIMEOUT"), &cfg.WriteTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv("IBEACON_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := s.setDuration("reconnect-max", os.Getenv("IBEACON_RECONNECT_MAX"), &cfg.ReconnectMax); err != nil {
		return err
	}

	s.setBoolFromString("follow", os.Getenv("IBEACON_FOLLOW"), &cfg.Follow)
	s.setBoolFromString("lescan", os.Getenv("IBEACON_LESCAN"), &cfg.Lescan)
	s.setBoolFromString("reconnect", os.Getenv("IBEACON_RECONNECT"), &cfg.Reconnect)

	return nil
}
