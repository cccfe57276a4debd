package ingest

import (
	"time"

	"k8s.io/utils/clock"
)

// windowLength is how often the frame counter is published and reset.
const windowLength = time.Second

// window counts frames and rolls over once windowLength has elapsed.
// The published value is the count of the window that just closed, so a
// reader sees a figure up to one window old.
type window struct {
	clock clock.PassiveClock
	start time.Time
	count uint32
}

func newWindow(c clock.PassiveClock) *window {
	return &window{clock: c, start: c.Now()}
}

// observe counts one frame. When the window has elapsed it returns the
// completed count with rolled set, and starts a new window at now.
func (w *window) observe() (count uint32, now time.Time, rolled bool) {
	w.count++
	now = w.clock.Now()
	if now.Sub(w.start) < windowLength {
		return 0, now, false
	}
	count = w.count
	w.count = 0
	w.start = now
	return count, now, true
}
