// Package ports defines the interfaces that connect the capture pipeline
// to its infrastructure.
//
// # Port Interfaces
//
//   - [LineSource]: opens the line-oriented hcidump text stream
//   - [Publisher]: receives every decoded beacon event
//
// The pipeline in internal/app depends only on these interfaces. Concrete
// sources live in internal/capture and the publisher is the broadcast
// server in internal/broadcast.
package ports
