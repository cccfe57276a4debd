package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/bryanchriswhite/ScreenRelay/internal/device"
	"github.com/bryanchriswhite/ScreenRelay/internal/input"
	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
	"github.com/bryanchriswhite/ScreenRelay/internal/metrics"
	"github.com/bryanchriswhite/ScreenRelay/internal/output"
	"github.com/bryanchriswhite/ScreenRelay/internal/queue"
	"github.com/bryanchriswhite/ScreenRelay/internal/state"
)

const (
	version         = "0.1.0"
	maxInputBytes   = 64 << 10
	maxRunBytes     = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Config carries the gateway settings that are not dependencies.
type Config struct {
	StreamFPS    int
	DeviceSerial string
}

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	store      *state.Store
	controller device.Controller
	queue      *queue.Client
	config     Config

	mjpeg   *output.MJPEGOutput
	ws      *output.WebSocketOutput
	outputs []output.Output
}

// NewServer creates a new API server. It reads frames from store and
// never touches the capture connection.
func NewServer(store *state.Store, controller device.Controller, queueClient *queue.Client, cfg Config) *Server {
	outCfg := output.Config{FPS: cfg.StreamFPS}
	s := &Server{
		router:     mux.NewRouter(),
		store:      store,
		controller: controller,
		queue:      queueClient,
		config:     cfg,
		mjpeg:      output.NewMJPEGOutput(store, outCfg),
		ws:         output.NewWebSocketOutput(store, outCfg),
	}

	s.outputs = []output.Output{s.mjpeg, s.ws}

	metrics.Register()
	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Frame access and throughput
	s.router.HandleFunc("/frame", s.handleFrame).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")

	// Device input
	s.router.HandleFunc("/input", s.handleInput).Methods("POST")

	// Queue service relay
	s.router.HandleFunc("/aq_status", s.handleQueueStatus).Methods("GET")
	s.router.HandleFunc("/aq_queues", s.handleQueueList).Methods("GET")
	s.router.HandleFunc("/aq_run", s.handleQueueRun).Methods("POST")

	// Live streams
	s.router.HandleFunc("/stream", s.mjpeg.GetHTTPHandler()).Methods("GET")
	s.router.HandleFunc("/ws", s.ws.GetHTTPHandler())

	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/device", s.handleDevice).Methods("GET")

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleNotFound)
}

// Handler returns the full middleware chain around the router.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.logRequests(s.router))
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then stops the
// live streams and shuts the server down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := logger.WithComponent("api")

	if err := s.startOutputs(); err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msgf("Server listening on http://%s", ln.Addr())

	select {
	case err := <-errCh:
		s.stopOutputs()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	s.stopOutputs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) startOutputs() error {
	for i, out := range s.outputs {
		if err := out.Start(); err != nil {
			for _, started := range s.outputs[:i] {
				started.Stop()
			}
			return fmt.Errorf("start %s output: %w", out.Name(), err)
		}
	}
	return nil
}

func (s *Server) stopOutputs() {
	for _, out := range s.outputs {
		if err := out.Stop(); err != nil {
			logger.WithComponent("api").Warn().Err(err).Str("output", out.Name()).Msg("Failed to stop output")
		}
	}
}

// HTTP Handlers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": msg})
}

func setNoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	setNoCache(w)

	frame, ok := s.store.LatestFrame()
	if !ok {
		http.Error(w, "Frame not available", http.StatusServiceUnavailable)
		return
	}

	width := 0
	if raw := r.URL.Query().Get("width"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, output.ErrInvalidWidth.Error(), http.StatusBadRequest)
			return
		}
		width = n
	}

	etag := fmt.Sprintf(`"%d"`, frame.Seq)
	if width > 0 {
		etag = fmt.Sprintf(`"%d-w%d"`, frame.Seq, width)
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	data := frame.Data
	if width > 0 {
		scaled, err := output.Resize(data, width)
		if err != nil {
			logger.WithComponent("api").Warn().Err(err).Uint64("seq", frame.Seq).Msg("Failed to scale frame")
			http.Error(w, "Frame could not be scaled", http.StatusInternalServerError)
			return
		}
		data = scaled
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "up",
		"data": map[string]any{
			"fps": stats.FrameCount,
		},
	})
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInputBytes))
	if err != nil {
		metrics.RecordInputCommand("invalid", "rejected")
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	cmd, err := input.Decode(body)
	if err != nil {
		var verr *input.ValidationError
		if errors.As(err, &verr) {
			metrics.RecordInputCommand("invalid", "rejected")
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	action := string(cmd.Action())
	if err := input.Execute(r.Context(), s.controller, cmd); err != nil {
		metrics.RecordInputCommand(action, "error")
		log.Error().Err(err).Str("action", action).Msg("Input command failed")
		writeError(w, http.StatusInternalServerError, "input command failed")
		return
	}

	metrics.RecordInputCommand(action, "ok")
	log.Debug().Str("action", action).Msg("Input command applied")
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) relay(w http.ResponseWriter, call func() (queue.Response, error)) {
	resp, err := call()
	if err != nil {
		writeJSON(w, http.StatusOK, queue.Down())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	s.relay(w, func() (queue.Response, error) {
		return s.queue.Status(r.Context())
	})
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	s.relay(w, func() (queue.Response, error) {
		return s.queue.Queues(r.Context())
	})
}

func (s *Server) handleQueueRun(w http.ResponseWriter, r *http.Request) {
	s.relay(w, func() (queue.Response, error) {
		return s.queue.Run(r.Context(), http.MaxBytesReader(w, r.Body, maxRunBytes))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"serial": s.config.DeviceSerial,
		"banner": nil,
	}
	if banner, ok := s.store.Banner(); ok {
		resp["banner"] = banner
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(viewerHTML))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
}
