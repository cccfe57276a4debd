package output

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
	"github.com/bryanchriswhite/ScreenRelay/internal/state"
)

const writeWait = 5 * time.Second

// WebSocketOutput pushes each new frame as a binary websocket message.
type WebSocketOutput struct {
	base
	source   Source
	config   Config
	upgrader websocket.Upgrader
}

// NewWebSocketOutput creates a websocket frame output.
func NewWebSocketOutput(source Source, config Config) *WebSocketOutput {
	return &WebSocketOutput{
		base:   base{name: "WebSocket"},
		source: source,
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Name returns the output type name
func (o *WebSocketOutput) Name() string {
	return "WebSocket Frame Push"
}

// GetHTTPHandler returns the upgrade handler. Mount it at /ws.
func (o *WebSocketOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		done, running := o.doneChan()
		if !running {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}

		log := logger.WithComponent("stream")
		conn, err := o.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}
		defer conn.Close()

		detach := o.attach()
		defer detach()

		// Incoming messages are discarded; a read error means the peer left.
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		err = follow(ctx, done, o.source, o.config.interval(), func(frame *state.Frame) error {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteMessage(websocket.BinaryMessage, frame.Data)
		})
		if err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
	}
}
