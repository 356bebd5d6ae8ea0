package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/edulink/classchat/internal/config"
	"github.com/edulink/classchat/internal/server"
)

type ClassChatApp struct {
	log      *log.Logger
	mux      *http.Server
	cs       *server.ChatServer
	verifier TokenVerifier
}

func NewClassChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer,
	verifier TokenVerifier, cfg *config.Config) *ClassChatApp {
	s := &ClassChatApp{
		log:      logger,
		cs:       cs,
		verifier: verifier,
	}

	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRooms))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ClassChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ClassChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
