package ws

import (
	"log"
	"net/http"

	"relay/internal/registry"

	"github.com/gorilla/websocket"
)

type Server struct {
	hub      *Hub
	upgrader *websocket.Upgrader
}

func NewServer(hub *Hub) *Server {
	return &Server{
		hub: hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Clients are not authenticated here
			},
		},
	}
}

// HandleConnections upgrades the request and serves the connection until
// either side closes it.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	conn := NewConnection(s.hub, ws, registry.NewHandle())
	if err := conn.Handle(r.Context()); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Printf("websocket connection error: %v", err)
	}
}
