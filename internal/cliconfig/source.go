package cliconfig

import (
	"os"

	"github.com/richardtguy/ibeacon-scan-hci/internal/capture"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/scanner"
)

// LineSource builds the capture source selected by Source. Call Validate
// first.
func (c Config) LineSource(logger log.Logger) scanner.LineSource {
	switch c.Source {
	case SourceFile:
		return &capture.FileSource{
			Path:   c.SourcePath,
			Follow: c.Follow,
			Logger: logger,
		}
	case SourceSerial:
		return capture.NewSerialSource(c.SourcePath, c.PortOptions())
	case SourceHcidump:
		return capture.NewCommandSource(c.HCI, c.Lescan, logger)
	default:
		return capture.NewReaderSource("stdin", os.Stdin)
	}
}
