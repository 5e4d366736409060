package api

import (
	"net/http"
	"testing"

	"github.com/kaydenvu/CPSC455-Project1/internal/blob"
	"github.com/kaydenvu/CPSC455-Project1/internal/config"
	"github.com/kaydenvu/CPSC455-Project1/internal/database"
	"github.com/kaydenvu/CPSC455-Project1/internal/server"
	"github.com/kaydenvu/CPSC455-Project1/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewGoChatApp(t *testing.T) {
	mux := http.NewServeMux()
	logger := testutil.TestLogger(t)
	cs := &server.ChatServer{}
	db := &database.MockRelayRepository{}
	blobs := blob.NewMemory()
	cfg := &config.Config{
		ServerAddr:     "localhost:8080",
		DatabaseDSN:    "dsn",
		SigningKey:     []byte("secret"),
		AllowedOrigins: []string{"http://localhost:3000"},
		DefaultRooms:   []string{"room1"},
	}

	app := NewGoChatApp(mux, logger, cs, db, blobs, nil, cfg)

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.mux, "expected mux to be initialized")
	assert.NotNil(t, app.limiter, "expected a default limiter")
	assert.Equal(t, logger, app.log, "expected logger to be set")
	assert.Equal(t, db, app.db, "expected db to be set")
	assert.Equal(t, cs, app.cs, "expected chat server to be set")
	assert.Equal(t, cfg.SigningKey, app.signingKey, "expected signing key to be set")
	assert.Equal(t, cfg.ServerAddr, app.mux.Addr, "expected server address to match config")
	assert.Equal(t, cfg.DefaultRooms, app.defaultRooms)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/healthz"},
		{http.MethodPost, "/api/auth/register"},
		{http.MethodPost, "/api/auth/login"},
		{http.MethodGet, "/api/auth/session"},
		{http.MethodGet, "/api/auth/logout"},
		{http.MethodGet, "/api/rooms"},
		{http.MethodGet, "/api/keys"},
		{http.MethodPost, "/api/keys"},
		{http.MethodGet, "/api/files/abc/notes.txt"},
		{http.MethodGet, "/ws/chat/lobby"},
	}

	for _, rt := range routes {
		req, _ := http.NewRequest(rt.method, rt.path, nil)
		_, pattern := mux.Handler(req)
		assert.NotEmpty(t, pattern, "expected a handler for %s %s", rt.method, rt.path)
	}
}
