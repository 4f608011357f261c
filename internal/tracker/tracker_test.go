package tracker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ruuviair/internal/protocol"
	"ruuviair/internal/tracker"
)

func sample(device string, seq uint32, ts time.Time) *protocol.Measurement {
	s := seq
	return &protocol.Measurement{
		DeviceID:  device,
		Format:    protocol.Format6,
		Timestamp: ts,
		Sequence:  &s,
	}
}

func TestAdmitDuplicateIsIdempotent(t *testing.T) {
	tr := tracker.New(5*time.Minute, zap.NewNop())
	t0 := time.Now().UTC()

	m := sample("AA:BB:CC:DD:EE:FF", 10, t0)
	require.Equal(t, tracker.Accept, tr.Admit(m, 5*time.Second))
	require.Equal(t, tracker.RejectDuplicate, tr.Admit(m, 5*time.Second))
	require.Equal(t, tracker.RejectDuplicate, tr.Admit(m, 5*time.Second))
}

func TestAdmitRateLimit(t *testing.T) {
	tr := tracker.New(5*time.Minute, zap.NewNop())
	t0 := time.Now().UTC()

	require.Equal(t, tracker.Accept,
		tr.Admit(sample("AA:BB:CC:DD:EE:FF", 10, t0), 5*time.Second))

	// new sample 2 s later: inside the quota
	require.Equal(t, tracker.RejectTooSoon,
		tr.Admit(sample("AA:BB:CC:DD:EE:FF", 11, t0.Add(2*time.Second)), 5*time.Second))

	// 6 s after the accepted one: through
	require.Equal(t, tracker.Accept,
		tr.Admit(sample("AA:BB:CC:DD:EE:FF", 11, t0.Add(6*time.Second)), 5*time.Second))
}

func TestAdmitIndependentDevices(t *testing.T) {
	tr := tracker.New(5*time.Minute, zap.NewNop())
	t0 := time.Now().UTC()

	require.Equal(t, tracker.Accept,
		tr.Admit(sample("AA:AA:AA:AA:AA:AA", 1, t0), 5*time.Second))
	// a different device is not throttled by the first one's quota
	require.Equal(t, tracker.Accept,
		tr.Admit(sample("BB:BB:BB:BB:BB:BB", 1, t0.Add(time.Second)), 5*time.Second))
}

// A sequence decrease is never treated as a duplicate. Within the restart
// threshold it is a counter wraparound (Format 6 counters are 8-bit);
// past it, a device restart. Both admit.
func TestAdmitSequenceWraparound(t *testing.T) {
	tr := tracker.New(5*time.Minute, zap.NewNop())
	t0 := time.Now().UTC()

	require.Equal(t, tracker.Accept,
		tr.Admit(sample("AA:BB:CC:DD:EE:FF", 250, t0), 5*time.Second))

	// 3 after 250 within seconds: wraparound, accepted
	require.Equal(t, tracker.Accept,
		tr.Admit(sample("AA:BB:CC:DD:EE:FF", 3, t0.Add(10*time.Second)), 5*time.Second))
}

func TestAdmitDeviceRestart(t *testing.T) {
	tr := tracker.New(5*time.Minute, zap.NewNop())
	t0 := time.Now().UTC()

	require.Equal(t, tracker.Accept,
		tr.Admit(sample("AA:BB:CC:DD:EE:FF", 1000, t0), 5*time.Second))

	// long silence then a low sequence: fresh device epoch
	require.Equal(t, tracker.Accept,
		tr.Admit(sample("AA:BB:CC:DD:EE:FF", 5, t0.Add(10*time.Minute)), 5*time.Second))
}

func TestAdmitWithoutSequence(t *testing.T) {
	tr := tracker.New(5*time.Minute, zap.NewNop())
	t0 := time.Now().UTC()

	m1 := &protocol.Measurement{DeviceID: "AA:BB:CC:DD:EE:FF", Timestamp: t0}
	m2 := &protocol.Measurement{DeviceID: "AA:BB:CC:DD:EE:FF", Timestamp: t0.Add(2 * time.Second)}
	m3 := &protocol.Measurement{DeviceID: "AA:BB:CC:DD:EE:FF", Timestamp: t0.Add(7 * time.Second)}

	// without a counter only the interval quota applies
	require.Equal(t, tracker.Accept, tr.Admit(m1, 5*time.Second))
	require.Equal(t, tracker.RejectTooSoon, tr.Admit(m2, 5*time.Second))
	require.Equal(t, tracker.Accept, tr.Admit(m3, 5*time.Second))
}

func TestSnapshotOnlineStatus(t *testing.T) {
	tr := tracker.New(5*time.Minute, zap.NewNop())
	now := time.Now().UTC()

	require.Equal(t, tracker.Accept,
		tr.Admit(sample("AA:AA:AA:AA:AA:AA", 1, now), 0))
	require.Equal(t, tracker.Accept,
		tr.Admit(sample("BB:BB:BB:BB:BB:BB", 1, now.Add(-10*time.Minute)), 0))

	states := tr.Snapshot()
	require.Len(t, states, 2)

	byID := make(map[string]tracker.DeviceState)
	for _, st := range states {
		byID[st.DeviceID] = st
	}
	require.True(t, byID["AA:AA:AA:AA:AA:AA"].Online)
	require.False(t, byID["BB:BB:BB:BB:BB:BB"].Online)
	require.Equal(t, uint64(1), byID["AA:AA:AA:AA:AA:AA"].AcceptedCount)
}
