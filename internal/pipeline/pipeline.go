// Package pipeline drives one advertisement from raw bytes to a durable row:
// dispatch to a format decoder, admit against per-device state, insert into
// the store. Decode failures and admit rejections are terminal for the
// advertisement and never propagate; store failures surface to the caller
// and feed the health signal.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ruuviair/internal/protocol"
	"ruuviair/internal/tracker"
)

// Writer is the slice of the measurement store the pipeline needs.
type Writer interface {
	Insert(ctx context.Context, m *protocol.Measurement) error
}

// Admitter is the slice of the device state tracker the pipeline needs.
type Admitter interface {
	Admit(m *protocol.Measurement, minInterval time.Duration) tracker.Decision
}

// LatestPublisher receives every accepted measurement for realtime
// consumers. Publish failures are logged and ignored: the cache is
// best-effort and must never fail ingestion.
type LatestPublisher interface {
	PublishLatest(ctx context.Context, m *protocol.Measurement) error
}

// unhealthyAfter is how many consecutive failed inserts flip the health
// signal. A single failed write is retried implicitly by the next incoming
// advertisement.
const unhealthyAfter = 5

// Pipeline is safe for concurrent use; one instance serves every physical
// ingest channel.
type Pipeline struct {
	store       Writer
	tracker     Admitter
	publisher   LatestPublisher // may be nil
	minInterval time.Duration
	logger      *zap.Logger
	stats       stats
}

// New creates a pipeline. publisher may be nil when no realtime cache is
// configured.
func New(store Writer, tr Admitter, publisher LatestPublisher, minInterval time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:       store,
		tracker:     tr,
		publisher:   publisher,
		minInterval: minInterval,
		logger:      logger,
	}
}

// Handle processes one advertisement. The returned error is non-nil only for
// store failures; everything else is handled (counted, logged, dropped)
// here.
func (p *Pipeline) Handle(ctx context.Context, adv protocol.RawAdvertisement) error {
	p.stats.advertisement()

	m, err := protocol.Dispatch(adv)
	if err != nil {
		switch {
		case err == protocol.ErrNotRuuvi:
			p.stats.notRuuvi()
		case err == protocol.ErrUnknownFormat:
			p.stats.unknownFormat()
			p.logger.Debug("unknown format discriminator",
				zap.String("address", adv.Address),
				zap.Int("payload_len", len(adv.Data)),
			)
		default:
			p.stats.decodeError()
			p.logger.Warn("failed to decode advertisement",
				zap.String("address", adv.Address),
				zap.Error(err),
			)
		}
		return nil
	}

	switch p.tracker.Admit(m, p.minInterval) {
	case tracker.RejectDuplicate:
		p.stats.duplicate()
		return nil
	case tracker.RejectTooSoon:
		p.stats.tooSoon()
		return nil
	}

	if err := p.store.Insert(ctx, m); err != nil {
		p.stats.storeError()
		p.logger.Error("failed to persist measurement",
			zap.String("device_id", m.DeviceID),
			zap.Error(err),
		)
		return err
	}
	p.stats.accepted(m.Format)

	if p.publisher != nil {
		if err := p.publisher.PublishLatest(ctx, m); err != nil {
			p.logger.Warn("failed to publish latest measurement",
				zap.String("device_id", m.DeviceID),
				zap.Error(err),
			)
		}
	}

	p.logger.Debug("measurement persisted",
		zap.String("device_id", m.DeviceID),
		zap.String("format", m.Format.String()),
		zap.Int("rssi_dbm", m.RSSI),
	)
	return nil
}

// Healthy reports whether the store is accepting writes. It trips after
// several consecutive insert failures and recovers on the first success;
// the service supervisor acts on it through the health endpoint.
func (p *Pipeline) Healthy() bool {
	return p.stats.consecutiveStoreFailures() < unhealthyAfter
}

// Stats returns a snapshot of the ingest counters.
func (p *Pipeline) Stats() Snapshot {
	return p.stats.snapshot()
}
