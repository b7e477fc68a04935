package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
)

// DefaultFollowPoll is the fallback re-read interval when no filesystem
// notification arrives.
const DefaultFollowPoll = time.Second

// FileSource reads a capture file. With Follow set it behaves like
// `tail -f`, waiting for hcidump to append more output instead of
// returning io.EOF.
type FileSource struct {
	Path   string
	Follow bool

	// Poll bounds how long a follower waits for a write notification
	// before re-reading anyway. Default: DefaultFollowPoll.
	Poll time.Duration

	Logger log.Logger
}

func (s *FileSource) Name() string { return "file:" + s.Path }

func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	if !s.Follow {
		return f, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.Path); err != nil {
		watcher.Close()
		f.Close()
		return nil, fmt.Errorf("watch %s: %w", s.Path, err)
	}

	poll := s.Poll
	if poll <= 0 {
		poll = DefaultFollowPoll
	}

	return &followReader{
		f:       f,
		watcher: watcher,
		poll:    poll,
		logger:  log.OrNoop(s.Logger),
		closed:  make(chan struct{}),
	}, nil
}

// followReader turns EOF on a growing file into a wait for the next write.
type followReader struct {
	f       *os.File
	watcher *fsnotify.Watcher
	poll    time.Duration
	logger  log.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func (r *followReader) Read(p []byte) (int, error) {
	for {
		n, err := r.f.Read(p)
		if n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
			return n, err
		}
		if err := r.wait(); err != nil {
			return 0, err
		}
	}
}

// wait blocks until the file is written, the poll interval passes, or the
// reader is closed.
func (r *followReader) wait() error {
	timer := time.NewTimer(r.poll)
	defer timer.Stop()

	for {
		select {
		case <-r.closed:
			return domain.ErrSourceClosed

		case <-timer.C:
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return domain.ErrSourceClosed
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return nil
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				r.logger.Warn("capture file moved or removed", log.String("path", event.Name))
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return domain.ErrSourceClosed
			}
			r.logger.Warn("capture file watcher error", log.Err(err))
		}
	}
}

func (r *followReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		werr := r.watcher.Close()
		ferr := r.f.Close()
		err = errors.Join(werr, ferr)
	})
	return err
}
