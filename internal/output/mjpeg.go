package output

import (
	"fmt"
	"net/http"

	"github.com/bryanchriswhite/ScreenRelay/internal/state"
)

// MJPEGOutput streams the latest frame as Motion JPEG over HTTP.
// Each client polls the source on its own; a slow client skips frames.
type MJPEGOutput struct {
	base
	source Source
	config Config
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(source Source, config Config) *MJPEGOutput {
	return &MJPEGOutput{
		base:   base{name: "MJPEG"},
		source: source,
		config: config,
	}
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// GetHTTPHandler returns an http.Handler for the MJPEG stream
// Mount this at /stream or similar endpoint
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		done, running := m.doneChan()
		if !running {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}

		// Set headers for MJPEG stream
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		detach := m.attach()
		defer detach()

		flusher, _ := w.(http.Flusher)
		follow(r.Context(), done, m.source, m.config.interval(), func(frame *state.Frame) error {
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame.Data)); err != nil {
				return err
			}
			if _, err := w.Write(frame.Data); err != nil {
				return err
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		})
	}
}
