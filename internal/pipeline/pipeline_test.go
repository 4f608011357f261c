package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ruuviair/internal/pipeline"
	"ruuviair/internal/protocol"
	"ruuviair/internal/tracker"
)

type fakeWriter struct {
	inserted []*protocol.Measurement
	err      error
}

func (w *fakeWriter) Insert(_ context.Context, m *protocol.Measurement) error {
	if w.err != nil {
		return w.err
	}
	w.inserted = append(w.inserted, m)
	return nil
}

type fakeAdmitter struct {
	decision tracker.Decision
}

func (a *fakeAdmitter) Admit(*protocol.Measurement, time.Duration) tracker.Decision {
	return a.decision
}

type fakePublisher struct {
	published int
	err       error
}

func (p *fakePublisher) PublishLatest(context.Context, *protocol.Measurement) error {
	p.published++
	return p.err
}

func format6Adv() protocol.RawAdvertisement {
	return protocol.RawAdvertisement{
		Address:        "DE:AD:BE:AA:BB:CC",
		RSSI:           -70,
		ManufacturerID: protocol.RuuviManufacturerID,
		Data: []byte{
			0x06, 0x11, 0xF8, 0x46, 0x50, 0xC8, 0x7D, 0x00, 0x7B, 0x02, 0x58,
			0x32, 0x03, 0x80, 0x00, 0x2A, 0x01, 0xAA, 0xBB, 0xCC,
		},
	}
}

func TestHandlePersistsAcceptedMeasurement(t *testing.T) {
	w := &fakeWriter{}
	pub := &fakePublisher{}
	p := pipeline.New(w, &fakeAdmitter{decision: tracker.Accept}, pub, 5*time.Second, zap.NewNop())

	require.NoError(t, p.Handle(context.Background(), format6Adv()))
	require.Len(t, w.inserted, 1)
	require.Equal(t, "DE:AD:BE:AA:BB:CC", w.inserted[0].DeviceID)
	require.Equal(t, 1, pub.published)

	s := p.Stats()
	require.Equal(t, int64(1), s.Advertisements)
	require.Equal(t, int64(1), s.Accepted)
	require.Equal(t, int64(1), s.AcceptedF6)
}

func TestHandleDropsRejections(t *testing.T) {
	for _, decision := range []tracker.Decision{tracker.RejectDuplicate, tracker.RejectTooSoon} {
		w := &fakeWriter{}
		p := pipeline.New(w, &fakeAdmitter{decision: decision}, nil, 5*time.Second, zap.NewNop())

		require.NoError(t, p.Handle(context.Background(), format6Adv()))
		require.Empty(t, w.inserted)
	}
}

func TestHandleCountsForeignAndUndecodable(t *testing.T) {
	w := &fakeWriter{}
	p := pipeline.New(w, &fakeAdmitter{decision: tracker.Accept}, nil, 0, zap.NewNop())
	ctx := context.Background()

	// foreign vendor
	require.NoError(t, p.Handle(ctx, protocol.RawAdvertisement{
		ManufacturerID: 0x004C,
		Data:           []byte{0x02, 0x15},
	}))
	// Ruuvi but unknown discriminator
	require.NoError(t, p.Handle(ctx, protocol.RawAdvertisement{
		ManufacturerID: protocol.RuuviManufacturerID,
		Data:           []byte{0x09, 0x00},
	}))
	// Ruuvi, known format, truncated
	require.NoError(t, p.Handle(ctx, protocol.RawAdvertisement{
		Address:        "AA:BB:CC:DD:EE:FF",
		ManufacturerID: protocol.RuuviManufacturerID,
		Data:           []byte{0x06, 0x11},
	}))

	require.Empty(t, w.inserted)
	s := p.Stats()
	require.Equal(t, int64(3), s.Advertisements)
	require.Equal(t, int64(1), s.NotRuuvi)
	require.Equal(t, int64(1), s.UnknownFormat)
	require.Equal(t, int64(1), s.DecodeErrors)
	require.Equal(t, int64(0), s.Accepted)
}

func TestHandleSurfacesStoreErrorAndStaysUp(t *testing.T) {
	w := &fakeWriter{err: errors.New("disk full")}
	p := pipeline.New(w, &fakeAdmitter{decision: tracker.Accept}, nil, 0, zap.NewNop())
	ctx := context.Background()

	// a single failed write is an error for the caller but not fatal
	require.Error(t, p.Handle(ctx, format6Adv()))
	require.True(t, p.Healthy())

	// repeated failures trip the health signal
	for i := 0; i < 10; i++ {
		_ = p.Handle(ctx, format6Adv())
	}
	require.False(t, p.Healthy())
	require.Equal(t, int64(11), p.Stats().StoreErrors)

	// first successful write recovers it
	w.err = nil
	require.NoError(t, p.Handle(ctx, format6Adv()))
	require.True(t, p.Healthy())
}

func TestPublisherFailureDoesNotFailIngest(t *testing.T) {
	w := &fakeWriter{}
	pub := &fakePublisher{err: errors.New("redis down")}
	p := pipeline.New(w, &fakeAdmitter{decision: tracker.Accept}, pub, 0, zap.NewNop())

	require.NoError(t, p.Handle(context.Background(), format6Adv()))
	require.Len(t, w.inserted, 1)
}
