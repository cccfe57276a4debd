package ingest

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/bryanchriswhite/ScreenRelay/internal/minicap"
	"github.com/bryanchriswhite/ScreenRelay/internal/state"
)

var banner = minicap.Banner{Version: 1, PID: 77, RealWidth: 720, RealHeight: 1280, VirtualWidth: 360, VirtualHeight: 640}

func waitForSeq(t *testing.T, store *state.Store, seq uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		f, ok := store.LatestFrame()
		return ok && f.Seq == seq
	}, 2*time.Second, time.Millisecond)
}

func TestLoopPublishesPreviousWindowCount(t *testing.T) {
	clock := testclock.NewFakeClock(time.Now())
	store := state.New()
	l := New("unused", store, WithClock(clock))

	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() { errCh <- l.consume(pr) }()

	enc := minicap.NewEncoder(pw)
	require.NoError(t, enc.WriteBanner(banner))

	const n = 6
	for i := 1; i < n; i++ {
		require.NoError(t, enc.WriteFrame([]byte{byte(i)}))
	}
	waitForSeq(t, store, n-1)
	assert.Equal(t, uint32(0), store.Stats().FrameCount, "first window has not closed yet")

	clock.Step(time.Second)
	require.NoError(t, enc.WriteFrame([]byte{n}))
	waitForSeq(t, store, n)

	stats := store.Stats()
	assert.Equal(t, uint32(n), stats.FrameCount)
	assert.Equal(t, clock.Now(), stats.LastUpdate)

	b, ok := store.Banner()
	require.True(t, ok)
	assert.Equal(t, uint32(77), b.PID)

	// More frames inside the new window leave the published count alone.
	require.NoError(t, enc.WriteFrame([]byte("late")))
	waitForSeq(t, store, n+1)
	assert.Equal(t, uint32(n), store.Stats().FrameCount)

	require.NoError(t, pw.Close())
	select {
	case err := <-errCh:
		var perr *minicap.ProtocolError
		assert.ErrorAs(t, err, &perr)
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not return after stream closed")
	}
}

func TestLoopZeroLengthFrameIsPublished(t *testing.T) {
	store := state.New()
	l := New("unused", store)

	pr, pw := io.Pipe()
	go func() { _ = l.consume(pr) }()
	defer pw.Close()

	enc := minicap.NewEncoder(pw)
	require.NoError(t, enc.WriteBanner(banner))
	require.NoError(t, enc.WriteFrame(nil))
	waitForSeq(t, store, 1)

	f, _ := store.LatestFrame()
	assert.NotNil(t, f.Data)
	assert.Empty(t, f.Data)
}

func serveOnce(t *testing.T, handle func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handle(conn)
	}()
	return ln.Addr().String()
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	addr := serveOnce(t, func(conn net.Conn) {
		defer conn.Close()
		enc := minicap.NewEncoder(conn)
		_ = enc.WriteBanner(banner)
		_ = enc.WriteFrame([]byte("hello"))
		<-release
	})

	store := state.New()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- New(addr, store).Run(ctx) }()

	waitForSeq(t, store, 1)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLoopRunFailsOnTruncatedFrame(t *testing.T) {
	addr := serveOnce(t, func(conn net.Conn) {
		defer conn.Close()
		enc := minicap.NewEncoder(conn)
		_ = enc.WriteBanner(banner)
		_, _ = conn.Write([]byte{10, 0, 0, 0, 'a', 'b'})
	})

	err := New(addr, state.New()).Run(context.Background())
	var perr *minicap.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "payload", perr.Op)
}

func TestLoopRunRejectsOversizedFrame(t *testing.T) {
	addr := serveOnce(t, func(conn net.Conn) {
		defer conn.Close()
		enc := minicap.NewEncoder(conn)
		_ = enc.WriteBanner(banner)
		_ = enc.WriteFrame(make([]byte, 2048))
	})

	store := state.New()
	err := New(addr, store, WithMaxFrameSize(1024)).Run(context.Background())
	assert.ErrorIs(t, err, minicap.ErrFrameTooLarge)

	_, ok := store.LatestFrame()
	assert.False(t, ok)
}

func TestLoopRunDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = New(addr, state.New()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to capture daemon")
}
