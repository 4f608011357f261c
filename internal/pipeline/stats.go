package pipeline

import (
	"sync"

	"ruuviair/internal/protocol"
)

// Snapshot is a point-in-time copy of the ingest counters, reported by the
// status endpoint and the periodic status log.
type Snapshot struct {
	Advertisements int64 `json:"advertisements"`
	NotRuuvi       int64 `json:"not_ruuvi"`
	UnknownFormat  int64 `json:"unknown_format"`
	DecodeErrors   int64 `json:"decode_errors"`
	Duplicates     int64 `json:"duplicates"`
	TooSoon        int64 `json:"too_soon"`
	Accepted       int64 `json:"accepted"`
	AcceptedRAWv2  int64 `json:"accepted_rawv2"`
	AcceptedF6     int64 `json:"accepted_format6"`
	AcceptedE1     int64 `json:"accepted_format_e1"`
	StoreErrors    int64 `json:"store_errors"`
}

type stats struct {
	mu            sync.Mutex
	snap          Snapshot
	storeFailures int // consecutive, reset on success
}

func (s *stats) advertisement() {
	s.mu.Lock()
	s.snap.Advertisements++
	s.mu.Unlock()
}

func (s *stats) notRuuvi() {
	s.mu.Lock()
	s.snap.NotRuuvi++
	s.mu.Unlock()
}

func (s *stats) unknownFormat() {
	s.mu.Lock()
	s.snap.UnknownFormat++
	s.mu.Unlock()
}

func (s *stats) decodeError() {
	s.mu.Lock()
	s.snap.DecodeErrors++
	s.mu.Unlock()
}

func (s *stats) duplicate() {
	s.mu.Lock()
	s.snap.Duplicates++
	s.mu.Unlock()
}

func (s *stats) tooSoon() {
	s.mu.Lock()
	s.snap.TooSoon++
	s.mu.Unlock()
}

func (s *stats) accepted(f protocol.Format) {
	s.mu.Lock()
	s.snap.Accepted++
	switch f {
	case protocol.FormatRAWv2:
		s.snap.AcceptedRAWv2++
	case protocol.Format6:
		s.snap.AcceptedF6++
	case protocol.FormatE1:
		s.snap.AcceptedE1++
	}
	s.storeFailures = 0
	s.mu.Unlock()
}

func (s *stats) storeError() {
	s.mu.Lock()
	s.snap.StoreErrors++
	s.storeFailures++
	s.mu.Unlock()
}

func (s *stats) consecutiveStoreFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeFailures
}

func (s *stats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
