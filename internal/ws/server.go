// Package ws is the transport adapter: it upgrades inbound connections,
// maps subscribe/unsubscribe requests to hub topic membership, and exposes
// the hold manager's operations as request/response calls over the same
// connection.
package ws

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/showroomhq/testdrive-core/internal/hold"
	"github.com/showroomhq/testdrive-core/internal/http/response"
	"github.com/showroomhq/testdrive-core/internal/hub"
	"github.com/showroomhq/testdrive-core/pkg/logger"
)

// SessionVerifier resolves a wizard session token into its session id.
type SessionVerifier interface {
	Verify(token string) (string, error)
}

type Server struct {
	hub      *hub.Hub
	holds    *hold.Manager
	sessions SessionVerifier
	upgrader websocket.Upgrader
}

func NewServer(h *hub.Hub, holds *hold.Manager, sessions SessionVerifier) *Server {
	return &Server{
		hub:      h,
		holds:    holds,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin wizard and dashboard clients connect directly;
			// the session token is the access control.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS handles GET /ws?session=<token>. The token rides a query
// parameter because browsers cannot set headers on websocket upgrades.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("session")
	if token == "" {
		response.Unauthorized(w, "session token required")
		return
	}
	sessionID, err := s.sessions.Verify(token)
	if err != nil {
		response.Unauthorized(w, "invalid session token")
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	conn := &Conn{
		id:        uuid.New().String(),
		sessionID: sessionID,
		sock:      sock,
		server:    s,
		send:      make(chan []byte, sendBufferSize),
	}
	s.hub.Register(conn.id, conn)

	ctx := context.WithValue(r.Context(), logger.ConnIDKey, conn.id)
	logger.InfoContext(ctx, "websocket connected", "session_id", sessionID)

	go conn.writePump()
	go conn.readPump()
}
