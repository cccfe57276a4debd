// Package ingest drives the capture connection: it decodes frames,
// publishes each one to the shared store and maintains the one-second
// throughput window.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net"

	"k8s.io/utils/clock"

	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
	"github.com/bryanchriswhite/ScreenRelay/internal/metrics"
	"github.com/bryanchriswhite/ScreenRelay/internal/minicap"
	"github.com/bryanchriswhite/ScreenRelay/internal/state"
)

// Dialer opens the capture connection.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Loop owns one capture connection for its whole life. It never
// reconnects: any decode or transport error ends Run.
type Loop struct {
	addr         string
	store        *state.Store
	dialer       Dialer
	clock        clock.Clock
	maxFrameSize uint32
}

// Option configures a Loop.
type Option func(*Loop)

// WithDialer replaces the default TCP dialer.
func WithDialer(d Dialer) Option {
	return func(l *Loop) { l.dialer = d }
}

// WithClock replaces the wall clock used for frame timestamps and windows.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithMaxFrameSize bounds accepted frames; zero means unbounded.
func WithMaxFrameSize(n uint32) Option {
	return func(l *Loop) { l.maxFrameSize = n }
}

// New creates a Loop that will connect to addr and publish into store.
func New(addr string, store *state.Store, opts ...Option) *Loop {
	l := &Loop{
		addr:         addr,
		store:        store,
		dialer:       &net.Dialer{},
		clock:        clock.RealClock{},
		maxFrameSize: minicap.DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run connects and ingests until the stream fails or ctx is cancelled.
// Cancellation closes the connection so a blocked read returns; in that
// case Run returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	log := logger.WithComponent("ingest")

	log.Info().Str("addr", l.addr).Msg("Connecting to capture daemon")
	conn, err := l.dialer.DialContext(ctx, "tcp", l.addr)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("connect to capture daemon at %s: %w", l.addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	err = l.consume(conn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Error().Err(err).Msg("Capture stream failed")
	return err
}

func (l *Loop) consume(r io.Reader) error {
	log := logger.WithComponent("ingest")
	dec := minicap.NewDecoder(r, minicap.WithMaxFrameSize(l.maxFrameSize))

	banner, err := dec.ReadBanner()
	if err != nil {
		return err
	}
	l.store.SetBanner(banner)
	log.Info().
		Uint32("pid", banner.PID).
		Uint32("real_width", banner.RealWidth).
		Uint32("real_height", banner.RealHeight).
		Uint32("virtual_width", banner.VirtualWidth).
		Uint32("virtual_height", banner.VirtualHeight).
		Int("orientation", banner.Orientation).
		Msg("Capture banner received")

	win := newWindow(l.clock)
	for {
		data, err := dec.ReadFrame()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		l.store.PublishFrame(data, l.clock.Now())
		metrics.RecordFrame(len(data))

		if count, now, rolled := win.observe(); rolled {
			l.store.PublishStats(count, now)
			metrics.SetFPS(count)
			log.Debug().Uint32("fps", count).Msg("Throughput window closed")
		}
	}
}
