package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"bubbles/internal/logger"
	"bubbles/internal/unified"
	apperrors "bubbles/pkg/errors"
	"bubbles/pkg/logging"
)

const (
	WebSocketPath      = "/ws"
	wsWriteTimeout     = 10 * time.Second
	wsMaxMessageBytes  = 1 << 20
	wsMaxInFlightFrame = 32
)

// WebSocketHandler accepts client connections on which every text frame is
// one command. Frames on a connection are processed concurrently and each
// reply carries the request id it answers.
type WebSocketHandler struct {
	processor Processor
	logger    logger.Logger
	upgrader  websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	active sync.WaitGroup
}

func NewWebSocketHandler(processor Processor, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		processor: processor,
		logger:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET(WebSocketPath, h.ServeWS)
}

func (h *WebSocketHandler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("WebSocket upgrade failed", "remote", c.ClientIP(), "error", err)
		return
	}
	if !h.track(conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	defer h.untrack(conn)
	conn.SetReadLimit(wsMaxMessageBytes)

	// Commands already accepted run to completion even if the client leaves.
	ctx := context.WithoutCancel(c.Request.Context())
	sem := semaphore.NewWeighted(wsMaxInFlightFrame)

	var (
		wg      sync.WaitGroup
		writeMu sync.Mutex
	)
	write := func(resp *unified.UnifiedResponse) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(resp); err != nil {
			h.logger.Debugw("Failed to write websocket response", "requestId", resp.RequestID, "error", err)
		}
	}
	defer wg.Wait()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debugw("WebSocket read ended", "remote", c.ClientIP(), "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var raw unified.RawRequest
		if err := json.Unmarshal(payload, &raw); err != nil {
			write(malformed(err))
			continue
		}
		raw.Source = unified.SourceWebSocket

		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			write(process(logging.WithServiceName(ctx, "gateway-ws"), h.processor, raw))
		}()
	}
}

func (h *WebSocketHandler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	h.active.Add(1)
	return true
}

func (h *WebSocketHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
	h.active.Done()
}

// Close refuses new connections, closes the open ones and waits until the
// frames they already accepted have been answered or ctx ends. Hijacked
// connections are invisible to http.Server.Shutdown, so call this before
// stopping the processor.
func (h *WebSocketHandler) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.UnderlyingConn().Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func malformed(err error) *unified.UnifiedResponse {
	appErr := apperrors.ErrValidation.WithCause(err).WithMessage("malformed command frame")
	return &unified.UnifiedResponse{
		Success:   false,
		Error:     appErr.Error(),
		ErrorCode: appErr.Code,
		Timestamp: time.Now(),
	}
}
