package transport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/theonlypal/collabfs/internal/hub"
)

// maxMessageBytes bounds one WebSocket message.
const maxMessageBytes = 4 << 20

// Server upgrades incoming HTTP requests to WebSocket connections and
// hands each one to a Hub for its full lifecycle.
type Server struct {
	hub *hub.Hub
	log *slog.Logger
}

// NewServer creates a Server relaying connections to h.
func NewServer(h *hub.Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{hub: h, log: log}
}

// Handler returns the net/http handler to mount at the WebSocket path
// (e.g. "/ws").
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)
	defer conn.CloseNow()

	stream := newWSStream(conn, r.RemoteAddr)
	if err := s.hub.Serve(r.Context(), stream); err != nil {
		s.log.Debug("connection closed", "remote", r.RemoteAddr, "err", err)
	}
}

// HealthHandler reports liveness for readiness probes.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
}
