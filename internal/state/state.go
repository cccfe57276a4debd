// Package state holds the single latest frame and the throughput counters
// shared between the ingestion loop and HTTP handlers.
package state

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenRelay/internal/minicap"
)

// Frame is one decoded image. Data must not be modified after Publish;
// readers share the same backing array.
type Frame struct {
	Data       []byte
	Seq        uint64
	ReceivedAt time.Time
}

// Stats is the frame count of the last completed throughput window.
type Stats struct {
	FrameCount uint32    `json:"frame_count"`
	LastUpdate time.Time `json:"last_update"`
}

// Store is the shared cell. The frame slot and the stats are guarded
// independently; a reader may pair a new frame with the previous window.
type Store struct {
	frameMu sync.RWMutex
	frame   *Frame
	seq     uint64

	statsMu sync.RWMutex
	stats   Stats

	bannerMu sync.RWMutex
	banner   *minicap.Banner
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// PublishFrame replaces the latest frame and returns it.
func (s *Store) PublishFrame(data []byte, at time.Time) *Frame {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	s.seq++
	s.frame = &Frame{Data: data, Seq: s.seq, ReceivedAt: at}
	return s.frame
}

// LatestFrame returns the most recent frame, or false before the first one.
func (s *Store) LatestFrame() (*Frame, bool) {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.frame, s.frame != nil
}

// PublishStats records the count of a completed window.
func (s *Store) PublishStats(count uint32, at time.Time) {
	s.statsMu.Lock()
	s.stats = Stats{FrameCount: count, LastUpdate: at}
	s.statsMu.Unlock()
}

// Stats returns a snapshot of the throughput counters.
func (s *Store) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// SetBanner records the banner of the current capture connection.
func (s *Store) SetBanner(b minicap.Banner) {
	s.bannerMu.Lock()
	s.banner = &b
	s.bannerMu.Unlock()
}

// Banner returns the capture banner, if one has been received.
func (s *Store) Banner() (minicap.Banner, bool) {
	s.bannerMu.RLock()
	defer s.bannerMu.RUnlock()
	if s.banner == nil {
		return minicap.Banner{}, false
	}
	return *s.banner, true
}
