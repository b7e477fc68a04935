package capture

import (
	"context"
	"io"
)

// ReaderSource serves capture text from an already-open stream such as
// os.Stdin, for example when running `hcidump --raw | ibeacon serve`.
type ReaderSource struct {
	name string
	r    io.Reader
}

// NewReaderSource wraps r. If r is also an io.Closer it is closed when the
// pipeline stops; otherwise closing is a no-op.
func NewReaderSource(name string, r io.Reader) *ReaderSource {
	return &ReaderSource{name: name, r: r}
}

func (s *ReaderSource) Name() string { return s.name }

func (s *ReaderSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if rc, ok := s.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.r), nil
}
