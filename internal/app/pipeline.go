package app

import (
	"context"
	"fmt"

	"github.com/richardtguy/ibeacon-scan-hci/internal/capture"
	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/internal/ibeacon"
	"github.com/richardtguy/ibeacon-scan-hci/internal/ports"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
)

// BeaconObserver is told about every decoded beacon after it is published.
type BeaconObserver interface {
	OnBeacon(ev domain.BeaconEvent, delivered int)
}

// Pipeline reads capture text from a LineSource, reassembles packet
// records, decodes iBeacon advertisements and publishes them.
type Pipeline struct {
	source    ports.LineSource
	publisher ports.Publisher
	decoder   *ibeacon.Decoder
	logger    log.Logger
	observer  BeaconObserver
}

// NewPipeline creates a pipeline. observer may be nil.
func NewPipeline(
	source ports.LineSource,
	publisher ports.Publisher,
	logger log.Logger,
	observer BeaconObserver,
) *Pipeline {
	return &Pipeline{
		source:    source,
		publisher: publisher,
		decoder:   ibeacon.NewDecoder(),
		logger:    log.OrNoop(logger),
		observer:  observer,
	}
}

// Stats returns the decoder counters.
func (p *Pipeline) Stats() *ibeacon.Stats {
	return p.decoder.Stats()
}

// Run opens the source and processes it until the source is exhausted,
// a read fails, or ctx is cancelled. It returns nil at a clean end of
// input, ctx.Err() on cancellation and the source error otherwise. The
// source is closed before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	name := p.source.Name()
	logger := p.logger.With(log.String("source", name))

	rc, err := p.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("open capture source %s: %w", name, err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			logger.Debug("close capture source", log.Err(err))
		}
	}()

	logger.Info("capture started")

	err = capture.NewReassembler().Run(ctx, rc, p.handle)

	stats := p.decoder.Stats()
	fields := []log.Field{
		log.Uint64("records", stats.Records.Load()),
		log.Uint64("decoded", stats.Decoded.Load()),
		log.Uint64("dropped", stats.Dropped.Load()),
	}

	switch {
	case err == nil:
		logger.Info("capture source exhausted", fields...)
		return nil
	case ctx.Err() != nil:
		logger.Info("capture stopped", fields...)
		return ctx.Err()
	default:
		logger.Error("capture failed", append(fields, log.Err(err))...)
		return fmt.Errorf("read capture source %s: %w", name, err)
	}
}

func (p *Pipeline) handle(rec domain.PacketRecord) {
	ev, ok := p.decoder.Decode(rec)
	if !ok {
		return
	}
	n := p.publisher.Publish(ev)
	p.logger.Debug("beacon",
		log.String("uuid", ev.UUID),
		log.Int("major", int(ev.Major)),
		log.Int("minor", int(ev.Minor)),
		log.Int("rssi", ev.RSSI),
		log.Int("delivered", n),
	)
	if p.observer != nil {
		p.observer.OnBeacon(ev, n)
	}
}
