// Package scanner provides an embeddable iBeacon broadcast service.
//
// A Scanner reads hcidump text from a line source, decodes iBeacon
// advertisements and serves them to TCP subscribers using the framing in
// package wire.
//
// # Basic Usage
//
//	cfg := scanner.DefaultConfig()
//	cfg.Addr = "0.0.0.0:9999"
//
//	s, err := scanner.New(cfg, scanner.WithLineSource(src))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// ... run until shutdown signal ...
//
//	if err := s.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// Without [WithLineSource] the scanner reads standard input, which suits
// piping from hcidump:
//
//	hcidump --raw | ibeacon serve
//
// # Event Handling
//
// Implement [EventHandler] (embedding [BaseEventHandler] to pick only the
// callbacks you need) and pass it via [WithEventHandler]. Callbacks run
// synchronously on the scanner's goroutines and must return quickly.
//
// # Lifecycle States
//
// A Scanner is in one of [StateStopped], [StateStarting], [StateRunning],
// [StateStopping] or [StateCrashed]. A capture source that ends cleanly
// leaves the scanner Running so existing subscribers stay connected; a
// capture or accept failure moves it to Crashed and closes [Scanner.Done].
package scanner
