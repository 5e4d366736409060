package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kaydenvu/CPSC455-Project1/internal/blob"
	"github.com/kaydenvu/CPSC455-Project1/internal/config"
	"github.com/kaydenvu/CPSC455-Project1/internal/database"
	"github.com/kaydenvu/CPSC455-Project1/internal/server"
	"github.com/kaydenvu/CPSC455-Project1/internal/stats"
	"github.com/kaydenvu/CPSC455-Project1/internal/testutil"
	"github.com/kaydenvu/CPSC455-Project1/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// findCookie returns the named cookie set on the response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	buf := &bytes.Buffer{}
	if s, ok := v.(string); ok {
		buf.WriteString(s)
		return buf
	}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	return buf
}

func Test_healthCheck(t *testing.T) {
	mockRepo := &database.MockRelayRepository{}
	defer mockRepo.AssertExpectations(t)

	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo.On("Ping").Return(tc.mockErr).Once()
			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	now := time.Now().UTC()
	expectedUser := database.User{
		Id:        1,
		Username:  "newuser",
		CreatedAt: now,
		UpdatedAt: now,
	}

	tcases := []struct {
		name         string
		body         any
		callsDb      bool
		mockErr      error
		expectedCode int
	}{
		{
			name:         "successfully creates a new account",
			body:         RegisterRequest{Username: "newuser", Password: "password"},
			callsDb:      true,
			expectedCode: http.StatusCreated,
		},
		{
			name:         "fails with invalid json body",
			body:         "invalid json",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "fails with missing username",
			body:         RegisterRequest{Password: "password"},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "fails with missing password",
			body:         RegisterRequest{Username: "newuser"},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "rejects the system name",
			body:         RegisterRequest{Username: "System", Password: "password"},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "rejects anonymous style names",
			body:         RegisterRequest{Username: "Anonymous-abc", Password: "password"},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "username taken",
			body:         RegisterRequest{Username: "newuser", Password: "password"},
			callsDb:      true,
			mockErr:      database.ErrUsernameTaken,
			expectedCode: http.StatusConflict,
		},
		{
			name:         "database error",
			body:         RegisterRequest{Username: "newuser", Password: "password"},
			callsDb:      true,
			mockErr:      errors.New("db down"),
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRelayRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.callsDb {
				user := expectedUser
				if tc.mockErr != nil {
					user = database.User{}
				}
				mockRepo.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
					return p.Username == "newuser" && verifyPassword(p.PasswordHash, "password")
				})).Return(user, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, tc.body))
			app.createAccount(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusCreated {
				var u types.User
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
				assert.Equal(t, expectedUser.Id, u.Id)
				assert.Equal(t, expectedUser.Username, u.Username)
				assert.NotContains(t, rr.Body.String(), "password")
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	hash, err := hashPassword("password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	dbUser := database.User{Id: 5, Username: "alice", PasswordHash: hash}

	tcases := []struct {
		name         string
		body         any
		mockUser     database.User
		mockErr      error
		callsDb      bool
		expectedCode int
	}{
		{
			name:         "valid credentials",
			body:         LoginRequest{Username: "alice", Password: "password"},
			mockUser:     dbUser,
			callsDb:      true,
			expectedCode: http.StatusOK,
		},
		{
			name:         "wrong password",
			body:         LoginRequest{Username: "alice", Password: "nope"},
			mockUser:     dbUser,
			callsDb:      true,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "unknown user",
			body:         LoginRequest{Username: "alice", Password: "password"},
			mockErr:      sql.ErrNoRows,
			callsDb:      true,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "database error",
			body:         LoginRequest{Username: "alice", Password: "password"},
			mockErr:      errors.New("db down"),
			callsDb:      true,
			expectedCode: http.StatusInternalServerError,
		},
		{
			name:         "invalid json",
			body:         "{",
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRelayRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.callsDb {
				mockRepo.On("GetAccountByUsername", "alice").Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, tc.body))
			app.login(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			cookie := findCookie(rr, tokenCookieKey)
			if tc.expectedCode != http.StatusOK {
				assert.Nil(t, cookie, "expected no session cookie")
				return
			}

			if assert.NotNil(t, cookie, "expected a session cookie") {
				assert.True(t, cookie.HttpOnly)
				userId, err := app.extractUserIdFromToken(cookie.Value)
				assert.NoError(t, err)
				assert.Equal(t, dbUser.Id, userId)
			}
		})
	}
}

func TestLogoutHandler(t *testing.T) {
	app := newTestApp(t, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	app.logout(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookie := findCookie(rr, tokenCookieKey)
	if assert.NotNil(t, cookie, "expected the token cookie to be overwritten") {
		assert.Empty(t, cookie.Value)
		assert.Equal(t, -1, cookie.MaxAge)
	}
}

func TestSessionHandler(t *testing.T) {
	tcases := []struct {
		name         string
		ctx          context.Context
		mockErr      error
		callsDb      bool
		expectedCode int
	}{
		{
			name:         "existing account",
			ctx:          WithUserId(context.Background(), 9),
			callsDb:      true,
			expectedCode: http.StatusOK,
		},
		{
			name:         "deleted account",
			ctx:          WithUserId(context.Background(), 9),
			callsDb:      true,
			mockErr:      sql.ErrNoRows,
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "no user in context",
			ctx:          context.Background(),
			expectedCode: http.StatusUnauthorized,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRelayRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.callsDb {
				mockRepo.On("GetAccountById", 9).Return(database.User{Id: 9, Username: "bob"}, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil).WithContext(tc.ctx)
			app.session(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusOK {
				assert.Contains(t, rr.Body.String(), `"username":"bob"`)
			}
		})
	}
}

func TestServeFile(t *testing.T) {
	blobs := blob.NewMemory()
	locator, err := blobs.Put(context.Background(), "6f1c2b9e-1a4b-4a64-9f0e-0c6b0f3f8c11/report.pdf", []byte("ivciphertext"), "application/octet-stream")
	if err != nil {
		t.Fatalf("put blob: %v", err)
	}

	failing := &blob.MockStore{}
	failing.On("Get", mock.Anything, mock.Anything).Return(nil, "", errors.New("nats down"))

	tcases := []struct {
		name         string
		store        blob.Store
		path         string
		expectedCode int
	}{
		{name: "stored file", store: blobs, path: "/api/files/" + locator, expectedCode: http.StatusOK},
		{name: "unknown file", store: blobs, path: "/api/files/6f1c2b9e-1a4b-4a64-9f0e-0c6b0f3f8c11/other.pdf", expectedCode: http.StatusNotFound},
		{name: "malformed id", store: blobs, path: "/api/files/not-a-uuid/report.pdf", expectedCode: http.StatusNotFound},
		{name: "store error", store: failing, path: "/api/files/6f1c2b9e-1a4b-4a64-9f0e-0c6b0f3f8c11/report.pdf", expectedCode: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, nil)
			app.blobs = tc.store
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/files/{id}/{name}", app.serveFile)

			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusOK {
				assert.Equal(t, "ivciphertext", rr.Body.String())
				assert.Equal(t, "application/octet-stream", rr.Header().Get("Content-Type"))
				assert.Equal(t, `attachment; filename=report.pdf`, rr.Header().Get("Content-Disposition"))
			}
		})
	}
}

func Test_validRoomName(t *testing.T) {
	tcases := []struct {
		name     string
		expected bool
	}{
		{"lobby", true},
		{"room_1-b", true},
		{"", false},
		{"has space", false},
		{"../etc", false},
		{strings.Repeat("a", maxRoomNameLength), true},
		{strings.Repeat("a", maxRoomNameLength+1), false},
	}

	for _, tc := range tcases {
		assert.Equal(t, tc.expected, validRoomName(tc.name), "room name %q", tc.name)
	}
}

func Test_checkOrigin(t *testing.T) {
	app := &GoChatApp{allowedOrigins: []string{"http://localhost:3000"}}

	tcases := []struct {
		origin   string
		expected bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://evil.example", false},
	}

	for _, tc := range tcases {
		req := httptest.NewRequest(http.MethodGet, "/ws/chat/lobby", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		assert.Equal(t, tc.expected, app.checkOrigin(req), "origin %q", tc.origin)
	}
}

func newMockStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

// newTestRelay serves a full app backed by mockRepo on an httptest server.
func newTestRelay(t *testing.T, mockRepo *database.MockRelayRepository) (*GoChatApp, *httptest.Server) {
	logger := testutil.TestLogger(t)
	cs, err := server.NewChatServer(logger, server.Options{History: mockRepo}, newMockStats())
	if err != nil {
		t.Fatalf("new chat server: %v", err)
	}

	cfg := &config.Config{
		ServerAddr:   "localhost:0",
		SigningKey:   []byte("test-signing-key"),
		DefaultRooms: []string{"room1", "room2"},
		RoomIdle:     time.Minute,
	}
	app := NewGoChatApp(http.NewServeMux(), logger, cs, mockRepo, blob.NewMemory(), nil, cfg)

	srv := httptest.NewServer(app.mux.Handler)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		cs.Shutdown(ctx)
		srv.Close()
	})
	return app, srv
}

func wsURL(srv *httptest.Server, room string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + room
}

// expectEvent reads events until match returns true.
func expectEvent(t *testing.T, conn *websocket.Conn, match func(server.Event) bool) server.Event {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev server.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if match(ev) {
			return ev
		}
	}
}

func systemMessage(text string) func(server.Event) bool {
	return func(ev server.Event) bool {
		return ev.Type == server.EventChat && ev.User == "System" && ev.Message == text
	}
}

func TestServeWs(t *testing.T) {
	mockRepo := &database.MockRelayRepository{}
	mockRepo.On("GetOrCreateRoom", "lobby").Return(database.Room{Id: 1, Name: "lobby"}, nil)
	mockRepo.On("LastMessages", 1, 50).Return([]database.Message{}, nil)
	mockRepo.On("GetAccountById", 4).Return(database.User{Id: 4, Username: "carol"}, nil)

	app, srv := newTestRelay(t, mockRepo)

	t.Run("anonymous visitor gets a session cookie", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "lobby"), nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		var anon *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == anonCookieKey {
				anon = c
			}
		}
		if !assert.NotNil(t, anon, "expected an anonymous session cookie") {
			return
		}

		anonId, err := app.extractAnonId(anon.Value)
		assert.NoError(t, err)

		expectEvent(t, conn, systemMessage("Anonymous-"+anonId+" has joined the chat!"))
	})

	t.Run("authenticated user joins under their username", func(t *testing.T) {
		token, err := app.createJwtForSession(types.User{Id: 4}, defaultJwtExpiration)
		if err != nil {
			t.Fatalf("create token: %v", err)
		}

		cookie := &http.Cookie{Name: tokenCookieKey, Value: token}
		header := http.Header{"Cookie": []string{cookie.String()}}
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "lobby"), header)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		assert.Empty(t, resp.Header.Values("Set-Cookie"))
		expectEvent(t, conn, systemMessage("carol has joined the chat!"))
	})

	t.Run("invalid room name", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "bad%20room"), nil)
		assert.Error(t, err)
		if assert.NotNil(t, resp) {
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		}
	})

	t.Run("rooms directory lists active rooms", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "lobby"), nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()
		expectEvent(t, conn, func(ev server.Event) bool { return ev.Type == server.EventPresenceSnapshot })

		resp, err := http.Get(srv.URL + "/api/rooms")
		if err != nil {
			t.Fatalf("get rooms: %v", err)
		}
		defer resp.Body.Close()

		var rooms []string
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
		assert.Equal(t, []string{"room1", "room2", "lobby"}, rooms)
	})
}
