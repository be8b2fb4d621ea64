package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"relay/internal/api"
)

type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAdminServer(store api.Store, online api.OnlineSource, names api.NameCache, addr string) *AdminServer {
	adminHandler := api.NewAdminHandler(store, online, names)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/users", adminHandler.ListUsersHandler)
	mux.HandleFunc("POST /admin/users", adminHandler.AddUserHandler)
	mux.HandleFunc("PUT /admin/users/{id}", adminHandler.RenameUserHandler)
	mux.HandleFunc("GET /admin/users/{id}/friends", adminHandler.FriendsHandler)
	mux.HandleFunc("GET /admin/groups", adminHandler.ListGroupsHandler)
	mux.HandleFunc("POST /admin/groups", adminHandler.AddGroupHandler)
	mux.HandleFunc("POST /admin/groups/{id}/members", adminHandler.AddGroupMemberHandler)
	mux.HandleFunc("POST /admin/groups/{id}/admins", adminHandler.AddGroupAdminHandler)
	mux.HandleFunc("GET /admin/online", adminHandler.OnlineHandler)

	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *AdminServer) Start() error {
	log.Printf("Admin API started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
