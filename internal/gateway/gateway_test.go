package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bubbles/internal/logger"
	"bubbles/internal/unified"
	"bubbles/pkg/models"
	"bubbles/pkg/retry"
)

type fakeProcessor struct {
	mu      sync.Mutex
	raws    []unified.RawRequest
	ctxErrs []error
	stopped atomic.Bool
	respond func(raw unified.RawRequest) *unified.UnifiedResponse
}

func (p *fakeProcessor) IsReady() bool { return !p.stopped.Load() }

func (p *fakeProcessor) ProcessRequest(ctx context.Context, raw unified.RawRequest) *unified.UnifiedResponse {
	if p.stopped.Load() {
		panic(unified.ErrNotInitialized)
	}
	p.mu.Lock()
	p.raws = append(p.raws, raw)
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	p.mu.Unlock()
	if p.respond != nil {
		return p.respond(raw)
	}
	return &unified.UnifiedResponse{Success: true, RequestID: raw.ID, Method: unified.MethodWebSocket}
}

func (p *fakeProcessor) GetMetrics() unified.Metrics {
	return unified.Metrics{TotalRequests: 7}
}

func (p *fakeProcessor) GetSystemHealth() unified.SystemHealth {
	return unified.SystemHealth{Backends: map[unified.Method]unified.BackendHealth{
		unified.MethodQueue: {Method: unified.MethodQueue, Status: unified.StatusHealthy, Score: 1},
	}}
}

func (p *fakeProcessor) received() []unified.RawRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]unified.RawRequest(nil), p.raws...)
}

func newRouter(p Processor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(p, logger.NopLogger()).RegisterRoutes(r)
	NewWebSocketHandler(p, logger.NopLogger()).RegisterRoutes(r)
	return r
}

func post(t *testing.T, r http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitCommand_Status(t *testing.T) {
	tests := []struct {
		name string
		resp *unified.UnifiedResponse
		want int
	}{
		{name: "success", resp: &unified.UnifiedResponse{Success: true}, want: http.StatusOK},
		{name: "validation", resp: &unified.UnifiedResponse{ErrorCode: "VALIDATION_ERROR"}, want: http.StatusBadRequest},
		{name: "all strategies failed", resp: &unified.UnifiedResponse{ErrorCode: "EXECUTION_FAILED"}, want: http.StatusBadGateway},
		{name: "dedup store down", resp: &unified.UnifiedResponse{ErrorCode: "SERVICE_UNAVAILABLE"}, want: http.StatusServiceUnavailable},
		{name: "timeout", resp: &unified.UnifiedResponse{ErrorCode: "TIMEOUT"}, want: http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{respond: func(unified.RawRequest) *unified.UnifiedResponse { return tt.resp }}
			w := post(t, newRouter(p), `{"type":"BAN_USER","data":{"userId":"1"}}`)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSubmitCommand_ForcesRESTSource(t *testing.T) {
	p := &fakeProcessor{}
	w := post(t, newRouter(p), `{"id":"r-1","type":"SEND_MESSAGE","source":"queue","data":{"channelId":"c","content":"hi"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	raws := p.received()
	require.Len(t, raws, 1)
	assert.Equal(t, unified.SourceREST, raws[0].Source)
	assert.Equal(t, "SEND_MESSAGE", raws[0].Type)

	var resp unified.UnifiedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "r-1", resp.RequestID)
}

func TestSubmitCommand_BadJSON(t *testing.T) {
	p := &fakeProcessor{}
	w := post(t, newRouter(p), `{"type":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	assert.Empty(t, p.received())
}

func TestMonitoringEndpoints(t *testing.T) {
	r := newRouter(&fakeProcessor{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalRequests":7`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/protocols", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queue"`)
}

func dialWS(t *testing.T, r http.Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return dialURL(t, srv.URL)
}

func dialURL(t *testing.T, base string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(base, "http") + WebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocket_ConcurrentFrames(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProcessor{respond: func(raw unified.RawRequest) *unified.UnifiedResponse {
		if raw.ID == "slow" {
			<-release
		}
		return &unified.UnifiedResponse{Success: true, RequestID: raw.ID, Method: unified.MethodQueue}
	}}
	conn := dialWS(t, newRouter(p))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"id": "slow", "type": "PLAY_MUSIC"}))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"id": "fast", "type": "SEND_MESSAGE", "source": "rest"}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first unified.UnifiedResponse
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "fast", first.RequestID)

	close(release)
	var second unified.UnifiedResponse
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "slow", second.RequestID)

	for _, raw := range p.received() {
		assert.Equal(t, unified.SourceWebSocket, raw.Source)
	}
}

func TestWebSocket_MalformedFrame(t *testing.T) {
	p := &fakeProcessor{}
	conn := dialWS(t, newRouter(p))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp unified.UnifiedResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "VALIDATION_ERROR", resp.ErrorCode)
	assert.Empty(t, p.received())
}

type fakeProducer struct {
	mu        sync.Mutex
	err       error
	published map[string][]models.MessageEnvelope
}

func (p *fakeProducer) Publish(_ context.Context, topic string, msg models.MessageEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.published == nil {
		p.published = make(map[string][]models.MessageEnvelope)
	}
	p.published[topic] = append(p.published[topic], msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func envelope(payload map[string]interface{}) models.MessageEnvelope {
	return *models.NewMessageEnvelopeBuilder().
		WithID("env-1").
		WithSource("scheduler").
		WithPayload(payload).
		WithTraceID("trace-1").
		Build()
}

func TestCommandConsumer_ProcessesAndReplies(t *testing.T) {
	p := &fakeProcessor{}
	producer := &fakeProducer{}
	c := NewCommandConsumer(p, producer, "responses", logger.NopLogger())

	err := c.HandleMessage(context.Background(), envelope(map[string]interface{}{
		"type":             "CREATE_GIVEAWAY",
		"guildId":          "g-1",
		"requiresRealTime": true,
		"data":             map[string]interface{}{"prize": "nitro"},
	}))
	require.NoError(t, err)

	raws := p.received()
	require.Len(t, raws, 1)
	assert.Equal(t, unified.SourceQueue, raws[0].Source)
	assert.Equal(t, "env-1", raws[0].ID)
	require.NotNil(t, raws[0].RequiresRealTime)
	assert.True(t, *raws[0].RequiresRealTime)

	out := producer.published["responses"]
	require.Len(t, out, 1)
	assert.Equal(t, "env-1", out[0].Metadata.RequestID)
	assert.Equal(t, "trace-1", out[0].Metadata.TraceID)
	assert.Equal(t, true, out[0].Payload["success"])
}

func TestCommandConsumer_ReplyTo(t *testing.T) {
	producer := &fakeProducer{}
	c := NewCommandConsumer(&fakeProcessor{}, producer, "responses", logger.NopLogger())

	msg := envelope(map[string]interface{}{"type": "SEND_MESSAGE", "id": "req-9"})
	msg.Metadata.ReplyTo = "custom"
	require.NoError(t, c.HandleMessage(context.Background(), msg))

	require.Len(t, producer.published["custom"], 1)
	assert.Equal(t, "req-9", producer.published["custom"][0].ID)
	assert.Empty(t, producer.published["responses"])
}

func TestCommandConsumer_Errors(t *testing.T) {
	t.Run("missing type is fatal", func(t *testing.T) {
		c := NewCommandConsumer(&fakeProcessor{}, &fakeProducer{}, "", logger.NopLogger())
		err := c.HandleMessage(context.Background(), envelope(map[string]interface{}{"data": 1}))
		require.Error(t, err)
		assert.True(t, retry.IsFatal(err))
	})

	t.Run("publish failure is retryable", func(t *testing.T) {
		producer := &fakeProducer{err: errors.New("broker down")}
		c := NewCommandConsumer(&fakeProcessor{}, producer, "", logger.NopLogger())
		err := c.HandleMessage(context.Background(), envelope(map[string]interface{}{"type": "SEND_MESSAGE"}))
		require.Error(t, err)
		assert.False(t, retry.IsFatal(err))
	})
}

func TestMalformedResponseShape(t *testing.T) {
	b, err := json.Marshal(malformed(errors.New("bad")))
	require.NoError(t, err)
	assert.True(t, bytes.Contains(b, []byte(`"success":false`)))
}

func TestSubmitCommand_ProcessorStopped(t *testing.T) {
	p := &fakeProcessor{}
	p.stopped.Store(true)

	w := post(t, newRouter(p), `{"type":"SEND_MESSAGE","data":{}}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "SERVICE_UNAVAILABLE")
	assert.Empty(t, p.received())
}

func TestSubmitCommand_OutlivesClientDisconnect(t *testing.T) {
	p := &fakeProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(`{"type":"BAN_USER","data":{}}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	newRouter(p).ServeHTTP(httptest.NewRecorder(), req)

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.ctxErrs, 1)
	assert.NoError(t, p.ctxErrs[0])
}

func TestWebSocket_ProcessorStopped(t *testing.T) {
	p := &fakeProcessor{}
	conn := dialWS(t, newRouter(p))
	p.stopped.Store(true)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"id": "late", "type": "PLAY_MUSIC"}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp unified.UnifiedResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "late", resp.RequestID)
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.ErrorCode)
}

func TestWebSocket_CloseDisconnectsClients(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProcessor{respond: func(raw unified.RawRequest) *unified.UnifiedResponse {
		<-release
		return &unified.UnifiedResponse{Success: true, RequestID: raw.ID}
	}}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	ws := NewWebSocketHandler(p, logger.NopLogger())
	ws.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn := dialURL(t, srv.URL)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"id": "busy", "type": "PLAY_MUSIC"}))
	require.Eventually(t, func() bool { return len(p.received()) == 1 }, 2*time.Second, 10*time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- ws.Close(context.Background()) }()

	select {
	case <-closed:
		t.Fatal("Close returned while a frame was still being processed")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-closed)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// Frames after Close never reach a stopped processor.
	p.stopped.Store(true)
	late := dialURL(t, srv.URL)
	_ = late.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestCommandConsumer_ProcessorStopped(t *testing.T) {
	p := &fakeProcessor{}
	p.stopped.Store(true)
	producer := &fakeProducer{}
	c := NewCommandConsumer(p, producer, "responses", logger.NopLogger())

	err := c.HandleMessage(context.Background(), envelope(map[string]interface{}{"type": "SEND_MESSAGE"}))
	require.Error(t, err)
	assert.False(t, retry.IsFatal(err))
	assert.Empty(t, producer.published)
}

// stoppingProcessor reports ready but has stopped by the time the request
// reaches it.
type stoppingProcessor struct{ *fakeProcessor }

func (stoppingProcessor) IsReady() bool { return true }

func TestProcess_ShutdownAfterReadyCheck(t *testing.T) {
	inner := &fakeProcessor{}
	inner.stopped.Store(true)

	resp := process(context.Background(), stoppingProcessor{inner}, unified.RawRequest{ID: "r1"})
	assert.False(t, resp.Success)
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.ErrorCode)

	assert.Panics(t, func() {
		process(context.Background(), &fakeProcessor{respond: func(unified.RawRequest) *unified.UnifiedResponse {
			panic("unrelated bug")
		}}, unified.RawRequest{})
	})
}
