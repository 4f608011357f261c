package tracker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"ruuviair/internal/protocol"
)

// Decision is the outcome of admitting a measurement.
type Decision int

const (
	Accept Decision = iota
	// RejectDuplicate: the device-generated sample was already seen (same
	// sequence counter), typical when overlapping scan windows pick up the
	// same advertisement twice before it rotates.
	RejectDuplicate
	// RejectTooSoon: the sample is new but arrived inside the per-device
	// minimum interval quota.
	RejectTooSoon
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectDuplicate:
		return "duplicate"
	case RejectTooSoon:
		return "too soon"
	default:
		return "unknown"
	}
}

// restartAfter separates a counter wraparound from a device restart when the
// sequence moves backwards: a decrease after this much silence is a new
// device epoch, a decrease within it is a routine wrap (Format 6 counters
// are 8-bit and wrap every few minutes). Both are admitted; the distinction
// only drives logging.
const restartAfter = 5 * time.Minute

type deviceState struct {
	lastSequence  *uint32
	lastAccepted  time.Time
	lastFormat    protocol.Format
	lastRSSI      int
	acceptedCount uint64
}

// DeviceState is a read-only snapshot of one tracked device.
type DeviceState struct {
	DeviceID      string
	LastSequence  *uint32
	LastAccepted  time.Time
	Format        protocol.Format
	RSSI          int
	AcceptedCount uint64
	Online        bool
}

// Tracker owns all per-device admission state. It is the sole mutator of
// that state; other components observe it through Snapshot.
type Tracker struct {
	mu           sync.Mutex
	devices      map[string]*deviceState
	offlineAfter time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// New creates a tracker. offlineAfter is the silence threshold after which a
// device reports offline in Snapshot.
func New(offlineAfter time.Duration, logger *zap.Logger) *Tracker {
	return &Tracker{
		devices:      make(map[string]*deviceState),
		offlineAfter: offlineAfter,
		logger:       logger,
		now:          time.Now,
	}
}

// Admit decides whether a decoded measurement should be persisted and, on
// Accept, updates the device state in place.
func (t *Tracker) Admit(m *protocol.Measurement, minInterval time.Duration) Decision {
	now := m.Timestamp
	if now.IsZero() {
		now = t.now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, seen := t.devices[m.DeviceID]
	if !seen {
		st = &deviceState{}
		t.devices[m.DeviceID] = st
	}

	if seen {
		if st.lastSequence != nil && m.Sequence != nil && *m.Sequence == *st.lastSequence {
			return RejectDuplicate
		}
		elapsed := now.Sub(st.lastAccepted)
		if minInterval > 0 && elapsed < minInterval {
			return RejectTooSoon
		}
		if st.lastSequence != nil && m.Sequence != nil && *m.Sequence < *st.lastSequence {
			if elapsed > restartAfter {
				t.logger.Info("device restart detected",
					zap.String("device_id", m.DeviceID),
					zap.Uint32("last_sequence", *st.lastSequence),
					zap.Uint32("sequence", *m.Sequence),
					zap.Duration("silence", elapsed),
				)
			} else {
				t.logger.Debug("sequence counter wrapped",
					zap.String("device_id", m.DeviceID),
					zap.Uint32("last_sequence", *st.lastSequence),
					zap.Uint32("sequence", *m.Sequence),
				)
			}
		}
	}

	st.lastSequence = m.Sequence
	st.lastAccepted = now
	st.lastFormat = m.Format
	st.lastRSSI = m.RSSI
	st.acceptedCount++
	return Accept
}

// Snapshot returns a copy of every tracked device's state. Online means an
// accepted sample within the offline threshold.
func (t *Tracker) Snapshot() []DeviceState {
	now := t.now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]DeviceState, 0, len(t.devices))
	for id, st := range t.devices {
		var seq *uint32
		if st.lastSequence != nil {
			v := *st.lastSequence
			seq = &v
		}
		out = append(out, DeviceState{
			DeviceID:      id,
			LastSequence:  seq,
			LastAccepted:  st.lastAccepted,
			Format:        st.lastFormat,
			RSSI:          st.lastRSSI,
			AcceptedCount: st.acceptedCount,
			Online:        now.Sub(st.lastAccepted) < t.offlineAfter,
		})
	}
	return out
}
