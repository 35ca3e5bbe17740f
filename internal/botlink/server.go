package botlink

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"bubbles/internal/config"
	"bubbles/internal/constants"
	"bubbles/internal/logger"
	"bubbles/internal/unified"
	apperrors "bubbles/pkg/errors"
	"bubbles/pkg/metrics"
	"bubbles/pkg/tracing"
)

const (
	DefaultListenPath    = "/bot/ws"
	defaultMaxConcurrent = 16
	idleTimeout          = 3 * pingInterval
)

// Handler executes one forwarded request on the bot.
type Handler func(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error)

// Server is the bot end of the link.
type Server struct {
	cfg      config.BotLinkConfig
	handler  Handler
	logger   logger.Logger
	upgrader websocket.Upgrader
	sem      *semaphore.Weighted
	peers    atomic.Int32
}

func NewServer(cfg config.BotLinkConfig, handler Handler, log logger.Logger) *Server {
	if cfg.ListenPath == "" {
		cfg.ListenPath = DefaultListenPath
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = constants.DefaultBotLinkHandshake
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

func (s *Server) RegisterRoutes(r gin.IRoutes) {
	r.GET(s.cfg.ListenPath, s.ServeWS)
}

// Connected reports whether a gateway is currently attached.
func (s *Server) Connected() bool {
	return s.peers.Load() > 0
}

func (s *Server) ServeWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warnw("Bot link upgrade failed", "remote", c.ClientIP(), "error", err)
		return
	}
	defer conn.Close()

	if err := s.authenticate(conn); err != nil {
		s.logger.Warnw("Rejected bot link connection", "remote", c.ClientIP(), "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
			time.Now().Add(time.Second))
		return
	}

	s.peers.Add(1)
	metrics.SetBotLinkConnected(true)
	defer func() {
		if s.peers.Add(-1) == 0 {
			metrics.SetBotLinkConnected(false)
		}
	}()
	s.logger.Infow("Gateway attached to bot link", "remote", c.ClientIP())

	s.serve(c.Request.Context(), conn)
}

func (s *Server) authenticate(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))

	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		return err
	}
	if f.Type != FrameAuth || subtle.ConstantTimeCompare([]byte(f.Token), []byte(s.cfg.Token)) != 1 {
		return ErrUnauthorized
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(readyFrame())
}

func (s *Server) serve(parent context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	var (
		wg      sync.WaitGroup
		writeMu sync.Mutex
	)
	write := func(f Frame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(f); err != nil {
			s.logger.Debugw("Failed to write bot link response", "id", f.ID, "error", err)
		}
	}

	defer wg.Wait()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debugw("Bot link read ended", "error", err)
			}
			cancel()
			return
		}

		switch f.Type {
		case FramePing:
			continue
		case FrameRequest:
		default:
			s.logger.Debugw("Ignoring bot link frame", "type", f.Type)
			continue
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func(f Frame) {
			defer wg.Done()
			defer s.sem.Release(1)
			write(s.handle(ctx, f))
		}(f)
	}
}

func (s *Server) handle(ctx context.Context, f Frame) (resp Frame) {
	ctx = tracing.ExtractMap(ctx, f.Trace)
	ctx, span := tracing.GetTracer("botlink-server").Start(ctx, "botlink.serve")

	var (
		data interface{}
		err  error
	)
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.BotLinkRequestsTotal.WithLabelValues("server", status).Inc()
		tracing.EndSpan(span, err)
	}()

	if f.Request == nil {
		err = apperrors.ErrValidation.WithMessage("request frame without request")
		return responseFrame(f.ID, nil, err)
	}

	if f.Request.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Request.Timeout)
		defer cancel()
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = apperrors.RecoverPanic(r)
			}
		}()
		data, err = s.handler(ctx, f.Request)
	}()

	return responseFrame(f.ID, data, err)
}
