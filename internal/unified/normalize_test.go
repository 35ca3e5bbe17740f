package unified

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool    { return &b }
func int64Ptr(v int64) *int64 { return &v }

func TestNormalize_Defaults(t *testing.T) {
	before := time.Now()
	req := Normalize(RawRequest{
		Type:   "PLAY_MUSIC",
		Data:   map[string]interface{}{"query": "x"},
		Source: SourceREST,
	})

	assert.NotEmpty(t, req.ID)
	assert.False(t, req.Timestamp.Before(before))
	assert.Equal(t, PriorityNormal, req.Priority)
	assert.False(t, req.RequiresRealTime)
	assert.False(t, req.RequiresReliability)
	assert.Equal(t, 30*time.Second, req.Timeout)
	assert.NotNil(t, req.Metadata)
	assert.Equal(t, "PLAY_MUSIC:global:system", req.OperationKey)
}

func TestNormalize_KeepsCallerValues(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	req := Normalize(RawRequest{
		ID:                  "req-1",
		Type:                "BAN_USER",
		Data:                map[string]interface{}{},
		Source:              SourceQueue,
		GuildID:             "g1",
		UserID:              "u1",
		Priority:            PriorityCritical,
		RequiresRealTime:    boolPtr(true),
		RequiresReliability: boolPtr(true),
		Timeout:             int64Ptr(1500),
		Timestamp:           &ts,
		Metadata:            map[string]interface{}{"k": "v"},
	})

	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, ts, req.Timestamp)
	assert.Equal(t, PriorityCritical, req.Priority)
	assert.True(t, req.RequiresRealTime)
	assert.True(t, req.RequiresReliability)
	assert.Equal(t, 1500*time.Millisecond, req.Timeout)
	assert.Equal(t, "v", req.Metadata["k"])
	assert.Equal(t, "BAN_USER:g1:u1", req.OperationKey)
}

func TestOperationKey_IgnoresPayloadAndIdentity(t *testing.T) {
	a := Normalize(RawRequest{ID: "a", Type: "BAN_USER", GuildID: "g", UserID: "u", Source: SourceREST,
		Data: map[string]interface{}{"reason": "one"}})
	b := Normalize(RawRequest{ID: "b", Type: "BAN_USER", GuildID: "g", UserID: "u", Source: SourceWebSocket,
		Data: map[string]interface{}{"reason": "two"}})

	assert.Equal(t, a.OperationKey, b.OperationKey)
	assert.NotEqual(t, a.OperationKey, OperationKey("KICK_USER", "g", "u"))
	assert.NotEqual(t, a.OperationKey, OperationKey("BAN_USER", "g", "other"))
}

func TestNormalize_NonObjectData(t *testing.T) {
	req := Normalize(RawRequest{Type: "X", Data: []interface{}{1, 2}, Source: SourceREST})
	assert.Nil(t, req.Data)
}

func TestNormalizedRequest_JSONTimeoutInMilliseconds(t *testing.T) {
	req := Normalize(RawRequest{Type: "X", Data: map[string]interface{}{}, Source: SourceREST, Timeout: int64Ptr(2500)})

	b, err := json.Marshal(req)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Equal(t, float64(2500), fields["timeout"])
	assert.Equal(t, "X:global:system", fields["operationKey"])

	var back NormalizedRequest
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, 2500*time.Millisecond, back.Timeout)
	assert.Equal(t, req.OperationKey, back.OperationKey)
}

func TestRawRequest_Explicit(t *testing.T) {
	e := RawRequest{Priority: PriorityLow, RequiresRealTime: boolPtr(false)}.Explicit()
	assert.True(t, e.Priority)
	assert.True(t, e.RequiresRealTime)
	assert.False(t, e.RequiresReliability)
}

func TestPriority_QueueLevel(t *testing.T) {
	assert.Equal(t, 1, PriorityCritical.QueueLevel())
	assert.Equal(t, 2, PriorityHigh.QueueLevel())
	assert.Equal(t, 3, PriorityNormal.QueueLevel())
	assert.Equal(t, 4, PriorityLow.QueueLevel())
}
