package render

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/service/display"
)

const (
	writeWait     = 2 * time.Second
	broadcastSize = 100
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // overlays run on the local network
	},
}

// Hub manages overlay WebSocket connections. All writes happen on the Run
// goroutine; render calls only enqueue frames and never block.
type Hub struct {
	broadcast  chan Frame
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	logger     zerolog.Logger

	clients atomic.Int32
	dropped atomic.Int64

	mu      sync.RWMutex
	current *Frame // last caption frame, replayed to new clients
}

// NewHub creates a hub. Call Run to start delivering frames.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Frame, broadcastSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logging.WithComponent("overlay-hub"),
	}
}

// Run delivers frames until ctx is done, then closes all connections.
func (h *Hub) Run(ctx context.Context) error {
	conns := make(map[*websocket.Conn]bool)
	defer func() {
		for conn := range conns {
			conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case conn := <-h.register:
			conns[conn] = true
			h.clients.Store(int32(len(conns)))
			h.mu.RLock()
			current := h.current
			h.mu.RUnlock()
			if current != nil && !h.write(conn, *current) {
				delete(conns, conn)
				conn.Close()
			}
			h.logger.Info().Int("clients", len(conns)).Msg("Overlay connected")

		case conn := <-h.unregister:
			if _, ok := conns[conn]; ok {
				delete(conns, conn)
				conn.Close()
			}
			h.clients.Store(int32(len(conns)))
			h.logger.Info().Int("clients", len(conns)).Msg("Overlay disconnected")

		case frame := <-h.broadcast:
			for conn := range conns {
				if !h.write(conn, frame) {
					delete(conns, conn)
					conn.Close()
				}
			}
			h.clients.Store(int32(len(conns)))
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, frame Frame) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Debug().Err(err).Msg("Overlay write failed")
		return false
	}
	return true
}

// ServeWS upgrades an overlay connection and keeps it registered until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	select {
	case h.register <- conn:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-time.After(writeWait):
				conn.Close()
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) send(f Frame) {
	select {
	case h.broadcast <- f:
	default:
		h.dropped.Add(1)
		h.logger.Warn().Str("type", f.Type).Msg("Overlay queue full, dropping frame")
	}
}

// Clients returns the number of connected overlays.
func (h *Hub) Clients() int {
	return int(h.clients.Load())
}

// RenderCaption implements display.Renderer.
func (h *Hub) RenderCaption(req display.RenderRequest) {
	f := newFrame(FrameCaption)
	f.Caption = &req
	h.mu.Lock()
	h.current = &f
	h.mu.Unlock()
	h.send(f)
}

// HideCaption implements display.Renderer.
func (h *Hub) HideCaption() {
	h.mu.Lock()
	h.current = nil
	h.mu.Unlock()
	h.send(newFrame(FrameHide))
}

// PulseHaptic asks overlays to vibrate the controller named by handle.
func (h *Hub) PulseHaptic(handle string) {
	f := newFrame(FrameHaptic)
	f.Handle = handle
	h.send(f)
}

// SetNoiseWarning shows or clears the overlay's noise icon.
func (h *Hub) SetNoiseWarning(on bool, level float64) {
	f := newFrame(FrameNoise)
	f.Warning = &on
	f.Level = level
	h.send(f)
}

// PromptOnboarding asks overlays to open the naming panel for speakerID.
func (h *Hub) PromptOnboarding(ctx context.Context, speakerID int) error {
	f := newFrame(FrameOnboarding)
	f.SpeakerID = &speakerID
	h.send(f)
	return nil
}
