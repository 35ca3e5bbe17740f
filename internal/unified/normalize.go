package unified

import (
	"time"

	"github.com/google/uuid"

	"bubbles/internal/constants"
)

const (
	defaultUserScope  = "system"
	defaultGuildScope = "global"
)

// OperationKey derives the dedup identity of an operation. It depends only
// on the type and the guild and user scope.
func OperationKey(reqType, guildID, userID string) string {
	if guildID == "" {
		guildID = defaultGuildScope
	}
	if userID == "" {
		userID = defaultUserScope
	}
	return reqType + ":" + guildID + ":" + userID
}

// Normalize fills every missing field of raw with its default and attaches
// the operation key. It never fails; shape problems are left for Validate.
func Normalize(raw RawRequest) *NormalizedRequest {
	req := &NormalizedRequest{
		ID:       raw.ID,
		Type:     raw.Type,
		Source:   raw.Source,
		UserID:   raw.UserID,
		GuildID:  raw.GuildID,
		Priority: raw.Priority,
		Metadata: raw.Metadata,
		Timeout:  constants.DefaultRequestTimeout,
	}

	if data, ok := raw.Data.(map[string]interface{}); ok {
		req.Data = data
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if raw.Timestamp != nil && !raw.Timestamp.IsZero() {
		req.Timestamp = *raw.Timestamp
	} else {
		req.Timestamp = time.Now()
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if raw.RequiresRealTime != nil {
		req.RequiresRealTime = *raw.RequiresRealTime
	}
	if raw.RequiresReliability != nil {
		req.RequiresReliability = *raw.RequiresReliability
	}
	if raw.Timeout != nil && *raw.Timeout > 0 {
		req.Timeout = time.Duration(*raw.Timeout) * time.Millisecond
	}
	if req.Metadata == nil {
		req.Metadata = map[string]interface{}{}
	}

	req.OperationKey = OperationKey(req.Type, req.GuildID, req.UserID)
	return req
}
