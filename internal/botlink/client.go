package botlink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bubbles/internal/config"
	"bubbles/internal/constants"
	"bubbles/internal/logger"
	"bubbles/internal/unified"
	"bubbles/pkg/metrics"
	"bubbles/pkg/tracing"
)

const (
	pingInterval = 15 * time.Second
	writeTimeout = 10 * time.Second
)

type reply struct {
	frame Frame
	err   error
}

// Client is the gateway end of the bot link. It keeps one authenticated
// connection open and reconnects with exponential backoff.
type Client struct {
	cfg    config.BotLinkConfig
	logger logger.Logger
	dialer *websocket.Dialer

	connected atomic.Bool

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan reply

	writeMu sync.Mutex

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewClient(cfg config.BotLinkConfig, log logger.Logger) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = constants.DefaultBotLinkHandshake
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = constants.DefaultReconnectInitial
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = constants.DefaultReconnectMax
	}
	return &Client{
		cfg:     cfg,
		logger:  log,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		pending: make(map[string]chan reply),
	}
}

// Start begins connecting in the background.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.done = make(chan struct{})
		go c.run(ctx)
	})
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.ReconnectInitial
	b.MaxInterval = c.cfg.ReconnectMax
	b.MaxElapsedTime = 0

	for ctx.Err() == nil {
		conn, err := c.connect(ctx)
		if err != nil {
			wait := b.NextBackOff()
			c.logger.Warnw("Bot link connection failed",
				"url", c.cfg.URL,
				"retry_in", wait,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		b.Reset()
		c.serve(ctx, conn)
	}
}

// connect dials and completes the auth/ready handshake.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bot link: %w", err)
	}

	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(authFrame(c.cfg.Token)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send auth frame: %w", err)
	}

	_ = conn.SetReadDeadline(deadline)
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if f.Type != FrameReady {
		conn.Close()
		return nil, fmt.Errorf("%w: expected ready frame, got %q", ErrUnauthorized, f.Type)
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	return conn, nil
}

// serve owns conn until it breaks or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	metrics.SetBotLinkConnected(true)
	c.logger.Infow("Bot link connected", "url", c.cfg.URL)

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	go c.keepalive(conn, stop)

	err := c.readLoop(conn)
	close(stop)

	c.connected.Store(false)
	metrics.SetBotLinkConnected(false)
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	conn.Close()
	c.failPending(ErrDisconnected)

	if ctx.Err() == nil {
		c.logger.Warnw("Bot link disconnected", "error", err)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		if f.Type != FrameResponse {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.mu.Unlock()

		if ok {
			ch <- reply{frame: f}
		}
	}
}

func (c *Client) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.write(conn, pingFrame()); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan reply)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- reply{err: err}
	}
}

// SendRequest forwards req to the bot and waits for the correlated
// response, bounded by ctx and the request timeout.
func (c *Client) SendRequest(ctx context.Context, req *unified.NormalizedRequest) (data json.RawMessage, err error) {
	ctx, span := tracing.GetTracer("botlink-client").Start(ctx, "botlink.send")
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.BotLinkRequestsTotal.WithLabelValues("client", status).Inc()
		tracing.EndSpan(span, err)
	}()

	c.mu.Lock()
	conn := c.conn
	if conn == nil || !c.connected.Load() {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := uuid.New().String()
	ch := make(chan reply, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if err := c.write(conn, requestFrame(id, req, tracing.InjectMap(ctx))); err != nil {
		forget()
		return nil, fmt.Errorf("failed to send request over bot link: %w", err)
	}

	select {
	case <-ctx.Done():
		forget()
		return nil, fmt.Errorf("bot link request %s: %w", req.ID, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.frame.result()
	}
}

// Close stops reconnecting and fails outstanding requests.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()
		<-c.done
	})
	return nil
}

// Probe is the health check for the link.
func (c *Client) Probe(context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}
