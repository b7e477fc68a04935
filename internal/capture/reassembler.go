package capture

import (
	"bufio"
	"context"
	"io"
	"strings"
	"unicode"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
)

// RecordMarker starts a new record in hcidump output.
const RecordMarker = '>'

// maxLineBytes bounds a single capture line.
const maxLineBytes = 1 << 20

// Reassembler accumulates capture lines into packet records.
// It holds at most one in-flight record and is not safe for concurrent use.
type Reassembler struct {
	acc strings.Builder
}

// NewReassembler creates an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed consumes one capture line. When the line starts a new record the
// previously accumulated record is returned with ok set. Anything that is
// not a marker line, including garbage, is appended to the current record.
func (r *Reassembler) Feed(line string) (rec domain.PacketRecord, ok bool) {
	line = stripSpace(line)
	if line == "" {
		return "", false
	}
	if line[0] != RecordMarker {
		r.acc.WriteString(line)
		return "", false
	}
	rec, ok = r.Flush()
	r.acc.WriteString(line[1:])
	return rec, ok
}

// Flush returns and clears the in-flight record, if any.
func (r *Reassembler) Flush() (domain.PacketRecord, bool) {
	if r.acc.Len() == 0 {
		return "", false
	}
	rec := domain.PacketRecord(r.acc.String())
	r.acc.Reset()
	return rec, true
}

// Run reads lines from src until it is exhausted or ctx is done, calling
// fn for every completed record in capture order.
//
// Reads happen on a helper goroutine so that a read blocked on a quiet
// radio never prevents Run from observing cancellation. The caller should
// close src after Run returns to release that goroutine.
//
// Run returns nil at a clean end of stream, after flushing the final
// record; the read error on failure; and ctx.Err() on cancellation.
func (r *Reassembler) Run(ctx context.Context, src io.Reader, fn func(domain.PacketRecord)) error {
	scan := bufio.NewScanner(src)
	scan.Buffer(make([]byte, 0, 4096), maxLineBytes)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if rec, ok := r.Flush(); ok {
					fn(rec)
				}
				return nil
			}
			if rec, ok := r.Feed(line); ok {
				fn(rec)
			}
		}
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
