package dedup

import (
	"time"

	"bubbles/internal/unified"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record tracks one operation key from first sight until eviction.
type Record struct {
	Key        string                   `json:"key"`
	RequestID  string                   `json:"requestId"`
	Status     Status                   `json:"status"`
	Response   *unified.UnifiedResponse `json:"response,omitempty"`
	Error      string                   `json:"error,omitempty"`
	CreatedAt  time.Time                `json:"createdAt"`
	ResolvedAt time.Time                `json:"resolvedAt,omitempty"`
}

func (r *Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Expired reports whether a terminal record has outlived the retention
// window. Pending records never expire.
func (r *Record) Expired(now time.Time, retention time.Duration) bool {
	return r.Terminal() && r.ResolvedAt.Before(now.Add(-retention))
}

// result is the response a duplicate caller receives for this record.
func (r *Record) result() *unified.UnifiedResponse {
	if r.Response != nil {
		return r.Response
	}
	return &unified.UnifiedResponse{
		Success:   r.Status == StatusCompleted,
		RequestID: r.RequestID,
		Error:     r.Error,
		Method:    unified.MethodDirect,
		Timestamp: r.ResolvedAt,
	}
}
