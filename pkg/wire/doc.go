// Package wire implements the framing shared by the broadcast server and
// its subscribers.
//
// Each frame is a 16-bit little-endian payload length followed by that
// many bytes of UTF-8 JSON:
//
//	+--------+--------+---------------------------------------------+
//	| len lo | len hi | {"UUID":"...","Major":1,"Minor":2,"RSSI":-56} |
//	+--------+--------+---------------------------------------------+
//
// There is no version byte, handshake or authentication. A subscriber
// simply reads frames until the connection closes.
package wire
