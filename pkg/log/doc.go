// Package log provides the logging abstraction used across the beacon
// scanner, its broadcast server and the subscriber client.
//
// Components accept a Logger and never import zerolog directly. The
// zerolog adapter is the production implementation; NoopLogger is the
// default when nothing is configured.
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	logger.Info("subscriber connected", log.String("addr", "10.0.0.7:51234"))
//
// Child loggers carry fields on every entry:
//
//	sessLog := logger.With(log.String("session", id))
package log
