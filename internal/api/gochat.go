package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/kaydenvu/CPSC455-Project1/internal/blob"
	"github.com/kaydenvu/CPSC455-Project1/internal/config"
	"github.com/kaydenvu/CPSC455-Project1/internal/database"
	"github.com/kaydenvu/CPSC455-Project1/internal/ratelimit"
	"github.com/kaydenvu/CPSC455-Project1/internal/server"
)

type GoChatApp struct {
	log            *log.Logger
	db             database.RelayRepository
	mux            *http.Server
	cs             *server.ChatServer
	blobs          blob.Store
	limiter        ratelimit.Limiter
	signingKey     []byte
	allowedOrigins []string
	defaultRooms   []string
}

// NewGoChatApp registers the HTTP and websocket routes on mux. A nil limiter
// falls back to an in-memory one.
func NewGoChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.RelayRepository, blobs blob.Store, limiter ratelimit.Limiter, cfg *config.Config) *GoChatApp {
	if limiter == nil {
		limiter = ratelimit.NewMemory(ratelimit.DefaultRules)
	}

	s := &GoChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		blobs:          blobs,
		limiter:        limiter,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		defaultRooms:   cfg.DefaultRooms,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.rateLimit(ratelimit.ClassLogin, s.login))
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.logout)
	mux.HandleFunc("GET /api/rooms", s.listRooms)
	mux.HandleFunc("GET /api/keys", s.authMiddleware(s.getRoomKeys))
	mux.HandleFunc("POST /api/keys", s.authMiddleware(s.putRoomKey))
	mux.HandleFunc("GET /api/files/{id}/{name}", s.serveFile)
	mux.HandleFunc("GET /ws/chat/{room}", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *GoChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
