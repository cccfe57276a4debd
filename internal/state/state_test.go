package state

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/ScreenRelay/internal/minicap"
)

func TestStoreEmptyUntilFirstFrame(t *testing.T) {
	s := New()

	frame, ok := s.LatestFrame()
	assert.False(t, ok)
	assert.Nil(t, frame)

	s.PublishFrame([]byte{}, time.Now())
	frame, ok = s.LatestFrame()
	require.True(t, ok)
	assert.Empty(t, frame.Data)
	assert.Equal(t, uint64(1), frame.Seq)
}

func TestStoreSequencesFrames(t *testing.T) {
	s := New()
	now := time.Now()

	s.PublishFrame([]byte("a"), now)
	second := s.PublishFrame([]byte("b"), now.Add(time.Millisecond))

	latest, ok := s.LatestFrame()
	require.True(t, ok)
	assert.Same(t, second, latest)
	assert.Equal(t, uint64(2), latest.Seq)
	assert.Equal(t, []byte("b"), latest.Data)
}

func TestStoreStats(t *testing.T) {
	s := New()
	assert.Equal(t, Stats{}, s.Stats())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.PublishStats(27, at)
	assert.Equal(t, Stats{FrameCount: 27, LastUpdate: at}, s.Stats())
}

func TestStoreBanner(t *testing.T) {
	s := New()
	_, ok := s.Banner()
	assert.False(t, ok)

	s.SetBanner(minicap.Banner{RealWidth: 720})
	b, ok := s.Banner()
	require.True(t, ok)
	assert.Equal(t, uint32(720), b.RealWidth)
}

// Every published buffer carries its own length in the first four bytes;
// a reader that sees a mismatch has observed a torn frame.
func TestStoreConcurrentReadsNeverTorn(t *testing.T) {
	s := New()
	const writes = 2000

	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lastSeq uint64
			for {
				select {
				case <-done:
					return
				default:
				}
				frame, ok := s.LatestFrame()
				if !ok {
					continue
				}
				prefix := binary.LittleEndian.Uint32(frame.Data[:4])
				if int(prefix) != len(frame.Data) {
					t.Errorf("torn frame seq=%d: prefix %d, len %d", frame.Seq, prefix, len(frame.Data))
					return
				}
				if frame.Seq < lastSeq {
					t.Errorf("sequence went backwards: %d after %d", frame.Seq, lastSeq)
					return
				}
				lastSeq = frame.Seq
			}
		}()
	}

	for i := 0; i < writes; i++ {
		size := 4 + i%977
		data := make([]byte, size)
		binary.LittleEndian.PutUint32(data, uint32(size))
		s.PublishFrame(data, time.Now())
		s.PublishStats(uint32(i), time.Now())
	}
	close(done)
	wg.Wait()

	latest, ok := s.LatestFrame()
	require.True(t, ok)
	assert.Equal(t, uint64(writes), latest.Seq)
}
