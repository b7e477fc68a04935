package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
)

// DefaultHCI is the Bluetooth adapter scanned when none is configured.
const DefaultHCI = "hci0"

// CommandSource runs `hcidump --raw` against an adapter and reads its
// standard output. With Lescan set it also keeps `hcitool lescan
// --duplicates` running so the controller reports every advertisement,
// not only the first per device.
//
// Accessing the HCI channel usually requires root, and a running bluez
// daemon may need stopping first.
type CommandSource struct {
	HCI    string
	Lescan bool
	Logger log.Logger

	// command builds each process; tests replace it.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewCommandSource creates a source scanning the given adapter.
func NewCommandSource(hci string, lescan bool, logger log.Logger) *CommandSource {
	if hci == "" {
		hci = DefaultHCI
	}
	return &CommandSource{HCI: hci, Lescan: lescan, Logger: log.OrNoop(logger), command: exec.CommandContext}
}

func (s *CommandSource) Name() string { return "hcidump:" + s.HCI }

func (s *CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	command := s.command
	if command == nil {
		command = exec.CommandContext
	}
	logger := log.OrNoop(s.Logger)

	procCtx, cancel := context.WithCancel(ctx)
	pr := &processReader{cancel: cancel}

	if s.Lescan {
		scan := command(procCtx, "hcitool", "-i", s.HCI, "lescan", "--duplicates")
		if err := scan.Start(); err != nil {
			cancel()
			return nil, fmt.Errorf("start hcitool: %w", err)
		}
		pr.cmds = append(pr.cmds, scan)
		logger.Debug("started hcitool lescan", log.String("hci", s.HCI))
	}

	dump := command(procCtx, "hcidump", "--raw", "-i", s.HCI)
	stdout, err := dump.StdoutPipe()
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("hcidump stdout: %w", err)
	}
	if err := dump.Start(); err != nil {
		pr.Close()
		return nil, fmt.Errorf("start hcidump: %w", err)
	}
	pr.cmds = append(pr.cmds, dump)
	pr.stdout = stdout
	logger.Info("started hcidump", log.String("hci", s.HCI))

	return pr, nil
}

// processReader reads hcidump output and reaps every started process on Close.
type processReader struct {
	stdout io.ReadCloser
	cmds   []*exec.Cmd
	cancel context.CancelFunc
	once   sync.Once
}

func (p *processReader) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *processReader) Close() error {
	var errs []error
	p.once.Do(func() {
		p.cancel()
		for _, c := range p.cmds {
			// A killed process reports *exec.ExitError or the context
			// error; both are the expected outcome here.
			var exitErr *exec.ExitError
			err := c.Wait()
			if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
