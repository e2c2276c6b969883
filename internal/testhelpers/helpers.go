// Package testhelpers provides utilities shared by the chat hub tests.
//
// It starts a complete hub behind an httptest server and offers WebSocket
// helpers that speak the chat protocol, so tests read as client scenarios.
package testhelpers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chathub/internal/hub"
	"github.com/Tyrowin/chathub/internal/server"
)

// TestOrigin is the Origin header sent by ConnectWebSocket. It is allowed by
// the default configuration.
const TestOrigin = "http://localhost:8080"

// Environment is a running hub, HTTP layer and test server.
type Environment struct {
	Hub    *hub.Hub
	Server *server.Server
	HTTP   *httptest.Server
	WSURL  string
}

// StartEnvironment runs a hub and server built from cfg. Everything is torn
// down when the test ends.
func StartEnvironment(t *testing.T, cfg *server.Config, opts hub.Options) *Environment {
	t.Helper()
	if cfg == nil {
		cfg = server.NewConfig()
	}
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	h := hub.New(log, opts)
	go func() { _ = h.Run(context.Background()) }()

	srv := server.New(log, h, *cfg)
	testServer := httptest.NewServer(srv.Routes())

	t.Cleanup(func() {
		testServer.Close()
		_ = srv.Shutdown(2 * time.Second)
		_ = h.Shutdown(2 * time.Second)
	})

	return &Environment{
		Hub:    h,
		Server: srv,
		HTTP:   testServer,
		WSURL:  "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws",
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)

	return resp
}

// ConnectWebSocket dials url with the test origin.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url with the given Origin header; an empty
// origin sends none.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials the environment and closes the connection at test end.
func MustConnect(t *testing.T, env *Environment) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(env.WSURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendLogin sends a Login envelope.
func SendLogin(conn *websocket.Conn, name string) error {
	return conn.WriteJSON(map[string]string{"type": "Login", "name": name})
}

// SendChat sends a Message envelope.
func SendChat(conn *websocket.Conn, chatter, text string) error {
	return conn.WriteJSON(map[string]string{"type": "Message", "chatter": chatter, "text": text})
}

// SendRawMessage sends a raw frame over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// ReceiveMessage reads one JSON frame, waiting at most timeout.
func ReceiveMessage(conn *websocket.Conn, timeout time.Duration) (map[string]any, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var message map[string]any
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("decoding %q: %w", data, err)
	}
	return message, nil
}

// MustReceive reads one frame and checks its type.
func MustReceive(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	message, err := ReceiveMessage(conn, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, wantType, message["type"], "unexpected frame %v", message)
	return message
}

// ExpectNoMessage fails if a frame arrives within wait.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	message, err := ReceiveMessage(conn, wait)
	require.Error(t, err, "expected no frame, got %v", message)
}

// Login logs conn in as name and consumes the join, ack and roster frames.
// It returns the roster it received.
func Login(t *testing.T, conn *websocket.Conn, name string) []string {
	t.Helper()
	require.NoError(t, SendLogin(conn, name))
	MustReceive(t, conn, "JoinSystem")
	MustReceive(t, conn, "LoginSystem")
	return Chatters(t, MustReceive(t, conn, "Chatters"))
}

// Chatters extracts the names from a Chatters frame.
func Chatters(t *testing.T, message map[string]any) []string {
	t.Helper()
	raw, ok := message["chatters"].([]any)
	require.True(t, ok, "chatters is not a list: %v", message)
	names := make([]string, 0, len(raw))
	for _, name := range raw {
		names = append(names, name.(string))
	}
	return names
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
