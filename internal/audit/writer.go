package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bubbles/internal/logger"
	"bubbles/internal/unified"
	"bubbles/pkg/metrics"
)

const (
	DefaultBufferSize = 1024
	maxBatch          = 64
	insertTimeout     = 5 * time.Second
	columnsPerEntry   = 13
)

// Entry is one row of command_audit_logs.
type Entry struct {
	ID           string
	RequestID    string
	OperationKey string
	Type         string
	Source       string
	Method       string
	Success      bool
	Error        string
	ErrorCode    string
	ExecutionMs  int64
	GuildID      string
	UserID       string
	CreatedAt    time.Time
}

func entryFor(req *unified.NormalizedRequest, resp *unified.UnifiedResponse) Entry {
	return Entry{
		ID:           uuid.New().String(),
		RequestID:    req.ID,
		OperationKey: req.OperationKey,
		Type:         req.Type,
		Source:       string(req.Source),
		Method:       string(resp.Method),
		Success:      resp.Success,
		Error:        resp.Error,
		ErrorCode:    resp.ErrorCode,
		ExecutionMs:  resp.ExecutionTime,
		GuildID:      req.GuildID,
		UserID:       req.UserID,
		CreatedAt:    resp.Timestamp,
	}
}

// Execer is satisfied by *sql.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Writer appends audit entries from a buffered channel so that recording
// never blocks a response. Entries that do not fit the buffer are dropped.
type Writer struct {
	db     Execer
	logger logger.Logger
	queue  chan Entry

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

var _ unified.Recorder = (*Writer)(nil)

func NewWriter(db Execer, bufferSize int, log logger.Logger) *Writer {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	w := &Writer{
		db:     db,
		logger: log,
		queue:  make(chan Entry, bufferSize),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) Record(req *unified.NormalizedRequest, resp *unified.UnifiedResponse) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}

	select {
	case w.queue <- entryFor(req, resp):
	default:
		metrics.AuditEntriesTotal.WithLabelValues("dropped").Inc()
		w.logger.Warnw("Audit buffer full, dropping entry",
			"request_id", req.ID,
			"type", req.Type,
		)
	}
}

func (w *Writer) run() {
	defer close(w.done)

	batch := make([]Entry, 0, maxBatch)
	for e := range w.queue {
		batch = append(batch[:0], e)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-w.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		w.flush(batch)
	}
}

func (w *Writer) flush(batch []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	query, args := insertQuery(batch)
	if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
		metrics.AuditEntriesTotal.WithLabelValues("failed").Add(float64(len(batch)))
		w.logger.Errorw("Failed to write audit entries", "count", len(batch), "error", err)
		return
	}
	metrics.AuditEntriesTotal.WithLabelValues("written").Add(float64(len(batch)))
}

func insertQuery(batch []Entry) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO command_audit_logs
		(id, request_id, operation_key, type, source, method, success, error, error_code, execution_ms, guild_id, user_id, created_at)
		VALUES `)

	args := make([]interface{}, 0, len(batch)*columnsPerEntry)
	for i, e := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for c := 0; c < columnsPerEntry; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*columnsPerEntry+c+1)
		}
		sb.WriteString(")")

		args = append(args,
			e.ID, e.RequestID, e.OperationKey, e.Type, e.Source, e.Method, e.Success,
			nullable(e.Error), nullable(e.ErrorCode), e.ExecutionMs,
			nullable(e.GuildID), nullable(e.UserID), e.CreatedAt,
		)
	}
	return sb.String(), args
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Close stops accepting entries and waits until the buffer is written or
// ctx ends.
func (w *Writer) Close(ctx context.Context) error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
	})

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit writer did not drain: %w", ctx.Err())
	}
}
