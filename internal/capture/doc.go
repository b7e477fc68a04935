// Package capture turns the text output of `hcidump --raw` into packet
// records.
//
// hcidump prints each HCI event as a line beginning with '>' (incoming)
// followed by continuation lines of hex bytes:
//
//	> 04 3E 2A 02 01 03 00 5A 9C 0F 8C 1B E4 1E 02 01 06 1A FF 4C
//	  00 02 15 E2 C5 6D B5 DF FB 48 D2 B0 60 D0 F5 A7 10 96 E0 00
//	  01 00 02 C5 B8
//
// The Reassembler strips whitespace and joins continuation lines onto the
// record started by the most recent marker. Sources provide the raw text:
// an io.Reader (stdin), a followed file, a serial port, or a spawned
// hcidump process.
package capture
