// Package output pushes the latest captured frame to live viewers.
package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
	"github.com/bryanchriswhite/ScreenRelay/internal/metrics"
	"github.com/bryanchriswhite/ScreenRelay/internal/state"
)

// Output is a live frame push mechanism:
// - MJPEG HTTP stream
// - websocket binary messages
type Output interface {
	// Start allows clients to attach
	Start() error

	// Stop detaches every client
	Stop() error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

var (
	_ Output = (*MJPEGOutput)(nil)
	_ Output = (*WebSocketOutput)(nil)
)

// Source supplies the most recent frame. *state.Store satisfies it.
type Source interface {
	LatestFrame() (*state.Frame, bool)
}

// Config holds common configuration for all output types
type Config struct {
	FPS int
}

func (c Config) interval() time.Duration {
	if c.FPS <= 0 {
		return time.Second / 15
	}
	return time.Second / time.Duration(c.FPS)
}

// follow polls src every interval and calls send for each frame whose Seq
// differs from the last one sent. Frames published between polls are
// skipped. It returns when send fails, ctx ends or done closes.
func follow(ctx context.Context, done <-chan struct{}, src Source, interval time.Duration, send func(*state.Frame) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uint64
	for {
		if frame, ok := src.LatestFrame(); ok && frame.Seq != last {
			if err := send(frame); err != nil {
				return err
			}
			last = frame.Seq
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case <-ticker.C:
		}
	}
}

// base tracks the running state and attached clients shared by outputs.
type base struct {
	name string

	mu      sync.RWMutex
	running bool
	done    chan struct{}

	clientsMu sync.Mutex
	clients   int
}

// Start allows clients to attach.
func (b *base) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("%s output already running", b.name)
	}

	b.running = true
	b.done = make(chan struct{})

	logger.WithComponent("stream").Info().Str("output", b.name).Msg("Output started")
	return nil
}

// Stop ends every attached stream.
func (b *base) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil
	}

	b.running = false
	close(b.done)

	logger.WithComponent("stream").Info().Str("output", b.name).Msg("Output stopped")
	return nil
}

// IsRunning returns true if the output is active
func (b *base) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Clients returns the number of attached clients.
func (b *base) Clients() int {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()
	return b.clients
}

func (b *base) doneChan() (<-chan struct{}, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.done, b.running
}

// attach registers a client and returns the func that detaches it.
func (b *base) attach() func() {
	log := logger.WithComponent("stream")

	b.clientsMu.Lock()
	b.clients++
	total := b.clients
	b.clientsMu.Unlock()

	metrics.StreamClientConnected()
	log.Info().Msgf("[%s] New client connected (total: %d)", b.name, total)

	return func() {
		b.clientsMu.Lock()
		b.clients--
		remaining := b.clients
		b.clientsMu.Unlock()

		metrics.StreamClientDisconnected()
		log.Info().Msgf("[%s] Client disconnected (remaining: %d)", b.name, remaining)
	}
}
