package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/ScreenRelay/internal/minicap"
	"github.com/bryanchriswhite/ScreenRelay/internal/queue"
	"github.com/bryanchriswhite/ScreenRelay/internal/state"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeController) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) Tap(_ context.Context, x, y int) error {
	return f.record("tap %d %d", x, y)
}

func (f *fakeController) LongTap(_ context.Context, x, y, d int) error {
	return f.record("long_tap %d %d %d", x, y, d)
}

func (f *fakeController) Swipe(_ context.Context, x1, y1, x2, y2, d int) error {
	return f.record("swipe %d %d %d %d %d", x1, y1, x2, y2, d)
}

func (f *fakeController) KeyEvent(_ context.Context, key int) error {
	return f.record("keyevent %d", key)
}

func (f *fakeController) Text(_ context.Context, text string) error {
	return f.record("text %s", text)
}

func (f *fakeController) Forward(_ context.Context, local, remote string) error {
	return f.record("forward %s %s", local, remote)
}

type fixture struct {
	store  *state.Store
	ctrl   *fakeController
	server *Server
}

func newFixture(t *testing.T, queueURL string) *fixture {
	t.Helper()
	f := &fixture{store: state.New(), ctrl: &fakeController{}}
	f.server = NewServer(f.store, f.ctrl, queue.NewClient(queueURL, queue.WithTimeout(time.Second)), Config{
		StreamFPS:    30,
		DeviceSerial: "emulator-5554",
	})
	return f
}

func (f *fixture) do(method, target string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestFrameUnavailable(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodGet, "/frame", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Frame not available\n", rec.Body.String())
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
}

func TestFrameServesLatest(t *testing.T) {
	f := newFixture(t, "")
	f.store.PublishFrame([]byte("old"), time.Now())
	f.store.PublishFrame([]byte("new"), time.Now())

	rec := f.do(http.MethodGet, "/frame", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, `"2"`, rec.Header().Get("ETag"))
	assert.Equal(t, "2", rec.Header().Get("X-Frame-Seq"))
	assert.Equal(t, "new", rec.Body.String())

	rec = f.do(http.MethodGet, "/frame", nil, "If-None-Match", `"2"`)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	f.store.PublishFrame([]byte("newer"), time.Now())
	rec = f.do(http.MethodGet, "/frame", nil, "If-None-Match", `"2"`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "newer", rec.Body.String())
}

func TestFrameWidth(t *testing.T) {
	f := newFixture(t, "")
	f.store.PublishFrame([]byte("not a jpeg"), time.Now())

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/frame?width=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/frame?width=wide", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/frame?width=10", nil).Code)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 80, 40)), nil))
	f.store.PublishFrame(buf.Bytes(), time.Now())

	rec := f.do(http.MethodGet, "/frame?width=20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"2-w20"`, rec.Header().Get("ETag"))
	cfg, err := jpeg.DecodeConfig(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"up","data":{"fps":0}}`, rec.Body.String())

	f.store.PublishStats(42, time.Now())
	rec = f.do(http.MethodGet, "/status", nil)
	assert.JSONEq(t, `{"status":"up","data":{"fps":42}}`, rec.Body.String())
}

func TestInput(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodPost, "/input", strings.NewReader(`{"action":"tap","x":100,"y":200}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())
	assert.Equal(t, []string{"tap 100 200"}, f.ctrl.Calls())

	rec = f.do(http.MethodPost, "/input", strings.NewReader(`{"action":"text","text":"hi"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"tap 100 200", "text hi"}, f.ctrl.Calls())
}

func TestInputRejected(t *testing.T) {
	bodies := []string{
		`{"action":"nonsense"}`,
		`{"action":"tap","x":1}`,
		`{"action":`,
		`"tap"`,
		``,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			f := newFixture(t, "")
			rec := f.do(http.MethodPost, "/input", strings.NewReader(body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "error", decodeBody(t, rec)["status"])
			assert.Empty(t, f.ctrl.Calls())
		})
	}
}

func TestInputControllerFailure(t *testing.T) {
	f := newFixture(t, "")
	f.ctrl.err = errors.New("device offline")

	rec := f.do(http.MethodPost, "/input", strings.NewReader(`{"action":"keyevent","key":3}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"keyevent 3"}, f.ctrl.Calls())
}

func TestQueueRelayDown(t *testing.T) {
	f := newFixture(t, "")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/aq_status"},
		{http.MethodGet, "/aq_queues"},
		{http.MethodPost, "/aq_run"},
	} {
		rec := f.do(tc.method, tc.path, strings.NewReader(`{}`))
		assert.Equal(t, http.StatusOK, rec.Code, tc.path)
		assert.JSONEq(t, `{"status":"down"}`, rec.Body.String(), tc.path)
	}
}

func TestQueueRelayUp(t *testing.T) {
	var runBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			w.Write([]byte(`{"worker":"idle"}`))
		case "/queues":
			w.Write([]byte(`["a","b"]`))
		case "/run":
			b, _ := io.ReadAll(r.Body)
			runBody = string(b)
			w.Write([]byte(`{"started":true}`))
		}
	}))
	defer upstream.Close()

	f := newFixture(t, upstream.URL)

	rec := f.do(http.MethodGet, "/aq_status", nil)
	assert.JSONEq(t, `{"status":"up","worker":"idle"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/aq_queues", nil)
	assert.JSONEq(t, `{"status":"up","data":["a","b"]}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/aq_run", strings.NewReader(`{"queue":"a"}`))
	assert.JSONEq(t, `{"status":"up","started":true}`, rec.Body.String())
	assert.JSONEq(t, `{"queue":"a"}`, runBody)
}

func TestAuxiliaryRoutes(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodGet, "/does/not/exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = f.do(http.MethodOptions, "/input", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodGet, "/api/health", nil)
	assert.JSONEq(t, `{"status":"healthy","version":"0.1.0"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/device", nil)
	assert.JSONEq(t, `{"serial":"emulator-5554","banner":null}`, rec.Body.String())

	f.store.SetBanner(minicap.Banner{Version: 1, Length: 24, RealWidth: 1080, RealHeight: 1920})
	body := decodeBody(t, f.do(http.MethodGet, "/api/device", nil))
	banner := body["banner"].(map[string]any)
	assert.Equal(t, float64(1080), banner["real_width"])

	rec = f.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/frame")
	assert.Contains(t, rec.Body.String(), "/aq_queues")
	assert.Contains(t, rec.Body.String(), "/aq_run")

	f.do(http.MethodPost, "/input", strings.NewReader(`{"action":"keyevent","key":4}`))
	rec = f.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "screenrelay_input_commands_total")
}

func TestWrongMethodIsNotFound(t *testing.T) {
	f := newFixture(t, "")

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/frame"},
		{http.MethodGet, "/input"},
		{http.MethodDelete, "/status"},
		{http.MethodGet, "/aq_run"},
	} {
		rec := f.do(tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.method+" "+tc.path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())
	}
	assert.Empty(t, f.ctrl.Calls())
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, "")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.server.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	f.store.PublishFrame([]byte("live"), time.Now())

	resp, err := http.Get(url + "/frame")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "live", string(body))

	stream, err := http.Get(url + "/stream")
	require.NoError(t, err)
	defer stream.Body.Close()

	for _, out := range f.server.outputs {
		assert.True(t, out.IsRunning(), out.Name())
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	for _, out := range f.server.outputs {
		assert.False(t, out.IsRunning(), out.Name())
	}
}

func TestServeRejectsRunningOutput(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.server.ws.Start())
	defer f.server.ws.Stop()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = f.server.Serve(context.Background(), ln)
	assert.ErrorContains(t, err, "start WebSocket Frame Push output")
	assert.False(t, f.server.mjpeg.IsRunning(), "outputs started earlier are stopped again")
}
