package unified

import (
	"encoding/json"
	"time"
)

// Source is the transport a request arrived on.
type Source string

const (
	SourceREST      Source = "rest"
	SourceWebSocket Source = "websocket"
	SourceQueue     Source = "queue"
	SourceInternal  Source = "internal"
)

func (s Source) Valid() bool {
	switch s {
	case SourceREST, SourceWebSocket, SourceQueue, SourceInternal:
		return true
	}
	return false
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// QueueLevel maps the priority onto the job queue's 1 (first) to 4 (last) scale.
func (p Priority) QueueLevel() int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 4
	default:
		return 3
	}
}

// Rank orders priorities so that a larger value is more urgent.
func (p Priority) Rank() int {
	return 5 - p.QueueLevel()
}

// Method identifies the backend that executes a request.
type Method string

const (
	MethodDirect    Method = "direct"
	MethodWebSocket Method = "websocket"
	MethodQueue     Method = "queue"
)

// RawRequest is the loosely typed inbound shape every transport decodes into.
// Pointer fields distinguish "absent" from the zero value.
type RawRequest struct {
	ID                  string                 `json:"id,omitempty"`
	Type                string                 `json:"type"`
	Data                interface{}            `json:"data"`
	Source              Source                 `json:"source,omitempty"`
	UserID              string                 `json:"userId,omitempty"`
	GuildID             string                 `json:"guildId,omitempty"`
	Priority            Priority               `json:"priority,omitempty"`
	RequiresRealTime    *bool                  `json:"requiresRealTime,omitempty"`
	RequiresReliability *bool                  `json:"requiresReliability,omitempty"`
	Timeout             *int64                 `json:"timeout,omitempty"`
	Timestamp           *time.Time             `json:"timestamp,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}

// Explicit records which routing fields the caller set, so hint rules
// only fill the gaps.
type Explicit struct {
	Priority            bool
	RequiresRealTime    bool
	RequiresReliability bool
}

func (r RawRequest) Explicit() Explicit {
	return Explicit{
		Priority:            r.Priority != "",
		RequiresRealTime:    r.RequiresRealTime != nil,
		RequiresReliability: r.RequiresReliability != nil,
	}
}

// NormalizedRequest is the canonical unit of work.
type NormalizedRequest struct {
	ID                  string
	Type                string
	Data                map[string]interface{}
	Source              Source
	UserID              string
	GuildID             string
	Priority            Priority
	RequiresRealTime    bool
	RequiresReliability bool
	Timeout             time.Duration
	Timestamp           time.Time
	Metadata            map[string]interface{}
	OperationKey        string
}

type normalizedJSON struct {
	ID                  string                 `json:"id"`
	Type                string                 `json:"type"`
	Data                map[string]interface{} `json:"data"`
	Source              Source                 `json:"source"`
	UserID              string                 `json:"userId,omitempty"`
	GuildID             string                 `json:"guildId,omitempty"`
	Priority            Priority               `json:"priority"`
	RequiresRealTime    bool                   `json:"requiresRealTime"`
	RequiresReliability bool                   `json:"requiresReliability"`
	Timeout             int64                  `json:"timeout"`
	Timestamp           time.Time              `json:"timestamp"`
	Metadata            map[string]interface{} `json:"metadata"`
	OperationKey        string                 `json:"operationKey"`
}

// MarshalJSON writes Timeout as milliseconds.
func (r NormalizedRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(normalizedJSON{
		ID:                  r.ID,
		Type:                r.Type,
		Data:                r.Data,
		Source:              r.Source,
		UserID:              r.UserID,
		GuildID:             r.GuildID,
		Priority:            r.Priority,
		RequiresRealTime:    r.RequiresRealTime,
		RequiresReliability: r.RequiresReliability,
		Timeout:             r.Timeout.Milliseconds(),
		Timestamp:           r.Timestamp,
		Metadata:            r.Metadata,
		OperationKey:        r.OperationKey,
	})
}

func (r *NormalizedRequest) UnmarshalJSON(b []byte) error {
	var v normalizedJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = NormalizedRequest{
		ID:                  v.ID,
		Type:                v.Type,
		Data:                v.Data,
		Source:              v.Source,
		UserID:              v.UserID,
		GuildID:             v.GuildID,
		Priority:            v.Priority,
		RequiresRealTime:    v.RequiresRealTime,
		RequiresReliability: v.RequiresReliability,
		Timeout:             time.Duration(v.Timeout) * time.Millisecond,
		Timestamp:           v.Timestamp,
		Metadata:            v.Metadata,
		OperationKey:        v.OperationKey,
	}
	if r.OperationKey == "" {
		r.OperationKey = OperationKey(r.Type, r.GuildID, r.UserID)
	}
	return nil
}

// UnifiedResponse is the result envelope returned to every transport.
type UnifiedResponse struct {
	Success   bool        `json:"success"`
	RequestID string      `json:"requestId"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"errorCode,omitempty"`
	// ExecutionTime is in milliseconds.
	ExecutionTime int64     `json:"executionTime"`
	Method        Method    `json:"method"`
	Timestamp     time.Time `json:"timestamp"`
	Duplicate     bool      `json:"duplicate,omitempty"`
}

// PathDecision is the primary/fallback choice for one request.
type PathDecision struct {
	Primary  Method `json:"primary"`
	Fallback Method `json:"fallback"`
	Reason   string `json:"reason"`
}

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// BackendHealth is the rolling assessment of one backend.
type BackendHealth struct {
	Method      Method       `json:"method"`
	Status      HealthStatus `json:"status"`
	Score       float64      `json:"score"`
	LatencyMs   int64        `json:"latencyMs"`
	LastError   string       `json:"lastError,omitempty"`
	LastChecked time.Time    `json:"lastChecked"`
}

func (h BackendHealth) Healthy() bool {
	return h.Status == StatusHealthy || h.Status == StatusDegraded
}

// SystemHealth is a point-in-time copy of every backend's health.
type SystemHealth struct {
	Backends  map[Method]BackendHealth `json:"backends"`
	CheckedAt time.Time                `json:"checkedAt"`
}
