package botlink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bubbles/internal/config"
	"bubbles/internal/logger"
	"bubbles/internal/unified"
)

const testToken = "s3cret"

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func startServer(t *testing.T, handler Handler) (*Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := NewServer(config.BotLinkConfig{
		Token:            testToken,
		HandshakeTimeout: 200 * time.Millisecond,
		MaxConcurrent:    4,
	}, handler, logger.NopLogger())

	r := gin.New()
	srv.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return srv, ts
}

func startClient(t *testing.T, url, token string) *Client {
	t.Helper()
	c := NewClient(config.BotLinkConfig{
		URL:              url,
		Token:            token,
		HandshakeTimeout: time.Second,
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
	}, logger.NopLogger())
	c.Start()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testRequest() *unified.NormalizedRequest {
	return &unified.NormalizedRequest{
		ID:        "req-1",
		Type:      "SEND_MESSAGE",
		Data:      map[string]interface{}{"channelId": "c1", "content": "hi"},
		Source:    unified.SourceREST,
		Priority:  unified.PriorityNormal,
		Timeout:   2 * time.Second,
		Timestamp: time.Now(),
	}
}

func TestLink_RoundTrip(t *testing.T) {
	srv, ts := startServer(t, func(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error) {
		return map[string]string{"echo": req.Type, "content": req.Data["content"].(string)}, nil
	})
	c := startClient(t, wsURL(ts, DefaultListenPath), testToken)

	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)
	assert.True(t, srv.Connected())
	require.NoError(t, c.Probe(context.Background()))

	raw, err := c.SendRequest(context.Background(), testRequest())
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "SEND_MESSAGE", out["echo"])
	assert.Equal(t, "hi", out["content"])
}

func TestLink_RemoteError(t *testing.T) {
	_, ts := startServer(t, func(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error) {
		return nil, errors.New("bot session not ready")
	})
	c := startClient(t, wsURL(ts, DefaultListenPath), testToken)
	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)

	_, err := c.SendRequest(context.Background(), testRequest())

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "bot session not ready", remote.Message)
}

func TestLink_HandlerPanicIsRemoteError(t *testing.T) {
	_, ts := startServer(t, func(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error) {
		panic("nil session")
	})
	c := startClient(t, wsURL(ts, DefaultListenPath), testToken)
	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)

	_, err := c.SendRequest(context.Background(), testRequest())

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "nil session")
}

func TestLink_ConcurrentRequestsAreCorrelated(t *testing.T) {
	_, ts := startServer(t, func(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error) {
		time.Sleep(20 * time.Millisecond)
		return req.ID, nil
	})
	c := startClient(t, wsURL(ts, DefaultListenPath), testToken)
	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)

	ids := []string{"a", "b", "c", "d", "e", "f"}
	errs := make(chan error, len(ids))
	for _, id := range ids {
		go func() {
			req := testRequest()
			req.ID = id
			raw, err := c.SendRequest(context.Background(), req)
			if err == nil && string(raw) != `"`+id+`"` {
				err = errors.New("mismatched response " + string(raw) + " for " + id)
			}
			errs <- err
		}()
	}
	for range ids {
		assert.NoError(t, <-errs)
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient(config.BotLinkConfig{URL: "ws://127.0.0.1:1/bot/ws"}, logger.NopLogger())

	assert.False(t, c.IsConnected())
	_, err := c.SendRequest(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, c.Probe(context.Background()), ErrNotConnected)
}

func TestClient_WrongTokenNeverConnects(t *testing.T) {
	_, ts := startServer(t, func(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error) {
		return nil, nil
	})
	c := startClient(t, wsURL(ts, DefaultListenPath), "wrong")

	assert.Never(t, c.IsConnected, 300*time.Millisecond, 20*time.Millisecond)
}

func TestServer_HandshakeTimeout(t *testing.T) {
	_, ts := startServer(t, func(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error) {
		return nil, nil
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, DefaultListenPath), nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestClient_DisconnectFailsPending(t *testing.T) {
	gin.SetMode(gin.TestMode)
	upgrader := websocket.Upgrader{}

	// A bot that accepts the handshake and drops the link on the first request.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var f Frame
		if conn.ReadJSON(&f) != nil || f.Type != FrameAuth {
			return
		}
		if conn.WriteJSON(readyFrame()) != nil {
			return
		}
		for {
			if conn.ReadJSON(&f) != nil || f.Type == FrameRequest {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	c := startClient(t, wsURL(ts, "/"), testToken)
	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)

	req := testRequest()
	req.Timeout = 5 * time.Second
	start := time.Now()
	_, err := c.SendRequest(context.Background(), req)

	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Less(t, time.Since(start), 2*time.Second)
}
