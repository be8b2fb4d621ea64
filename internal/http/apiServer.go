package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"relay/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(hub *ws.Hub, addr string) *APIServer {
	server := ws.NewServer(hub)

	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("GET /ws", server.HandleConnections)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
