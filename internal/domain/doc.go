// Package domain contains the value types shared by the capture pipeline,
// the broadcast server and the subscriber client.
//
// # Entities
//
//   - [PacketRecord]: the hex text of one HCI event, reassembled from capture lines
//   - [BeaconEvent]: the iBeacon fields decoded from a qualifying record
//
// The package has no dependencies on transport, logging or configuration.
package domain
