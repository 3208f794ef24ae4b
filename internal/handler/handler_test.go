package handler

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stromboard/internal/auth"
	"stromboard/internal/config"
	"stromboard/internal/database"
	"stromboard/internal/logging"
	"stromboard/internal/model"
	"stromboard/internal/relay"
	"stromboard/internal/store"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
	os.Exit(m.Run())
}

type testEnv struct {
	app      *fiber.App
	jwt      *auth.JWTManager
	hub      *relay.Hub
	sessions store.SessionStore
	// stopRelay cancels the hub and snapshot worker and waits for both
	stopRelay func()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.ConnectDB(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "handler.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	sessions := store.NewGormSessionStore(db)
	users := store.NewGormUserStore(db)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour, "test")

	bridge := relay.NewBridge(sessions, 4, time.Second)
	hub := relay.NewHub(relay.NewDirectory(), jwtManager, bridge, 64)
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	bridgeDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		_ = hub.Run(ctx)
	}()
	go func() {
		defer close(bridgeDone)
		_ = bridge.Run(ctx)
	}()
	stopRelay := func() {
		cancel()
		<-hubDone
		<-bridgeDone
	}
	t.Cleanup(stopRelay)

	sessionHandler := NewSessionHandler(sessions, hub.Directory())
	authHandler := NewAuthHandler(users, jwtManager, time.Hour, 4, false)
	healthHandler := NewHealthHandler(db, nil, hub)
	wsHandler := NewRelayWSHandler(hub, config.WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteTimeout:    time.Second,
		PongWait:        time.Minute,
		MaxMessageSize:  64 * 1024,
		SendBufferSize:  16,
	})

	app := fiber.New(fiber.Config{StrictRouting: true})
	api := app.Group("/api")
	api.Get("/health", healthHandler.Check)
	api.Get("/ping", healthHandler.Ping)

	sessionsGroup := api.Group("/sessions")
	sessionsGroup.Post("", auth.OptionalAuthMiddleware(jwtManager), sessionHandler.CreateSession)
	sessionsGroup.Get("", sessionHandler.ListSessions)
	sessionsGroup.Get("/:id", sessionHandler.GetSession)
	sessionsGroup.Put("/:id", sessionHandler.UpdateSession)
	sessionsGroup.Delete("/:id", sessionHandler.DeleteSession)
	sessionsGroup.Get("/:id/participants", sessionHandler.GetParticipants)

	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/logout", authHandler.Logout)
	authGroup.Get("/me", auth.AuthMiddleware(jwtManager), authHandler.GetMe)

	app.Get("/ws", wsHandler.Upgrade, websocket.New(wsHandler.HandleWebSocket, wsHandler.Config()))

	return &testEnv{app: app, jwt: jwtManager, hub: hub, sessions: sessions, stopRelay: stopRelay}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func TestSessionCRUD(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, fiber.MethodPost, "/api/sessions", fiber.Map{"sessionName": "First"}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var first model.Session
	require.NoError(t, json.Unmarshal(body, &first))
	assert.Equal(t, "First", first.SessionName)
	assert.JSONEq(t, `[]`, string(first.DrawingData))

	resp, body = env.do(t, fiber.MethodPost, "/api/sessions", fiber.Map{"name": "Second"}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var second model.Session
	require.NoError(t, json.Unmarshal(body, &second))

	resp, _ = env.do(t, fiber.MethodPost, "/api/sessions", fiber.Map{"sessionName": "  "}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, fiber.MethodGet, "/api/sessions", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list []model.Session
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	resp, _ = env.do(t, fiber.MethodGet, "/api/sessions/"+first.ID, nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = env.do(t, fiber.MethodGet, "/api/sessions/missing", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Session not found"}`, string(body))

	resp, _ = env.do(t, fiber.MethodDelete, "/api/sessions/"+second.ID, nil, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, fiber.MethodDelete, "/api/sessions/"+second.ID, nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestUpdateSessionDrawingData(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.sessions.CreateSession(context.Background(), "Board")
	require.NoError(t, err)

	testCases := []struct {
		name       string
		id         string
		body       any
		wantStatus int
	}{
		{name: "array", id: created.ID, body: fiber.Map{"drawingData": []any{fiber.Map{"type": "draw"}}}, wantStatus: fiber.StatusOK},
		{name: "object rejected", id: created.ID, body: fiber.Map{"drawingData": fiber.Map{"a": 1}}, wantStatus: fiber.StatusBadRequest},
		{name: "missing rejected", id: created.ID, body: fiber.Map{}, wantStatus: fiber.StatusBadRequest},
		{name: "unknown session", id: "missing", body: fiber.Map{"drawingData": []any{}}, wantStatus: fiber.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := env.do(t, fiber.MethodPut, "/api/sessions/"+tc.id, tc.body, nil)
			assert.Equal(t, tc.wantStatus, resp.StatusCode, string(body))
		})
	}

	got, err := env.sessions.GetSession(context.Background(), created.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"draw"}]`, string(got.DrawingData))
}

func TestParticipantsEmpty(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, fiber.MethodGet, "/api/sessions/ROOM1/participants", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, fiber.MethodPost, "/api/auth/register", fiber.Map{
		"name": "Ada", "email": "Ada@Example.com", "password": "hunter22",
	}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))

	var registered AuthResponse
	require.NoError(t, json.Unmarshal(body, &registered))
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "ada@example.com", registered.User.Email)

	testCases := []struct {
		name       string
		path       string
		body       fiber.Map
		wantStatus int
	}{
		{name: "duplicate", path: "/api/auth/register", body: fiber.Map{"name": "Ada", "email": "ada@example.com", "password": "hunter22"}, wantStatus: fiber.StatusConflict},
		{name: "email without password", path: "/api/auth/register", body: fiber.Map{"name": "Bob", "email": "bob@example.com"}, wantStatus: fiber.StatusBadRequest},
		{name: "bad email", path: "/api/auth/register", body: fiber.Map{"name": "Bob", "email": "bob", "password": "hunter22"}, wantStatus: fiber.StatusBadRequest},
		{name: "google without password", path: "/api/auth/register", body: fiber.Map{"name": "Gil", "email": "gil@example.com", "provider": "google"}, wantStatus: fiber.StatusCreated},
		{name: "login ok", path: "/api/auth/login", body: fiber.Map{"email": "ada@example.com", "password": "hunter22"}, wantStatus: fiber.StatusOK},
		{name: "login wrong password", path: "/api/auth/login", body: fiber.Map{"email": "ada@example.com", "password": "nope"}, wantStatus: fiber.StatusUnauthorized},
		{name: "login unknown", path: "/api/auth/login", body: fiber.Map{"email": "nobody@example.com", "password": "x"}, wantStatus: fiber.StatusUnauthorized},
		{name: "login passwordless account", path: "/api/auth/login", body: fiber.Map{"email": "gil@example.com"}, wantStatus: fiber.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := env.do(t, fiber.MethodPost, tc.path, tc.body, nil)
			assert.Equal(t, tc.wantStatus, resp.StatusCode, string(body))
		})
	}

	resp, body = env.do(t, fiber.MethodGet, "/api/auth/me", nil, map[string]string{
		fiber.HeaderAuthorization: "Bearer " + registered.Token,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	var me UserResponse
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, registered.User.ID, me.ID)

	resp, _ = env.do(t, fiber.MethodGet, "/api/auth/me", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, fiber.MethodGet, "/api/health", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "OK", health.Status)
	assert.Equal(t, "healthy", health.Checks["database"].Status)
	assert.Equal(t, "not_configured", health.Checks["cache"].Status)

	resp, body = env.do(t, fiber.MethodGet, "/api/ping", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"ok":true`)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, fiber.MethodGet, "/ws", nil, nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, addr, token string) *fastws.Conn {
	t.Helper()
	url := "ws://" + addr + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := fastws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *fastws.Conn, event string) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var f wsFrame
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Event == event {
			return f
		}
	}
}

func writeFrame(t *testing.T, conn *fastws.Conn, event string, data any) {
	t.Helper()
	raw, err := relay.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(fastws.TextMessage, raw))
}

func TestWebSocketRelayEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.sessions.CreateSession(context.Background(), "Board")
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = env.app.Listener(ln) }()
	t.Cleanup(func() { _ = env.app.Shutdown() })

	token, err := env.jwt.GenerateToken(auth.Identity{UserID: "u1", Name: "Ada"})
	require.NoError(t, err)

	a := dialWS(t, ln.Addr().String(), token)
	b := dialWS(t, ln.Addr().String(), "garbage")

	writeFrame(t, a, relay.EventJoinSession, fiber.Map{"sessionId": created.ID})
	readFrame(t, a, relay.EventUsersUpdate)

	writeFrame(t, b, relay.EventJoinSession, fiber.Map{"sessionId": created.ID, "userName": "Bob"})
	f := readFrame(t, b, relay.EventUsersUpdate)
	var roster []relay.RosterEntry
	require.NoError(t, json.Unmarshal(f.Data, &roster))
	require.Len(t, roster, 2)
	assert.Equal(t, "Ada", roster[0].Name)
	assert.Equal(t, "Bob", roster[1].Name)

	resp, body := env.do(t, fiber.MethodGet, "/api/sessions/"+created.ID+"/participants", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, string(f.Data), string(body))

	writeFrame(t, a, relay.EventDrawAction, fiber.Map{
		"sessionId": created.ID, "fromX": 0, "fromY": 0, "toX": 5, "toY": 5,
		"color": "#f00", "brushSize": 3, "tool": "pen",
	})
	f = readFrame(t, b, relay.EventDrawAction)
	assert.Contains(t, string(f.Data), `"senderId"`)

	writeFrame(t, a, relay.EventSaveCanvasState, fiber.Map{
		"sessionId":   created.ID,
		"drawingData": []any{fiber.Map{"type": "draw", "toX": 5}},
	})
	require.Eventually(t, func() bool {
		got, err := env.sessions.GetSession(context.Background(), created.ID)
		return err == nil && string(got.DrawingData) != "[]"
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Close())
	f = readFrame(t, b, relay.EventUsersUpdate)
	require.NoError(t, json.Unmarshal(f.Data, &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, "Bob", roster[0].Name)
}

func TestWebSocketClosedWhenRelayStopped(t *testing.T) {
	env := newTestEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = env.app.Listener(ln) }()
	t.Cleanup(func() { _ = env.app.Shutdown() })

	env.stopRelay()

	conn := dialWS(t, ln.Addr().String(), "")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()

	var closeErr *fastws.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, fastws.CloseGoingAway, closeErr.Code)
}
