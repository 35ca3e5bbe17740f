package models

import (
	"encoding/json"
	"time"
)

// ConfigUpdateEvent announces a runtime configuration change on the config
// update topic. Rules carries the complete replacement rule set.
type ConfigUpdateEvent struct {
	EventType   string          `json:"event_type"`
	ServiceType string          `json:"service_type"`
	Action      string          `json:"action"`
	Timestamp   time.Time       `json:"timestamp"`
	ChangedBy   string          `json:"changed_by,omitempty"`
	Rules       json.RawMessage `json:"rules,omitempty"`
}

const (
	EventTypeHintRulesUpdated = "hint_rules_updated"
)

const (
	ActionUpdate = "update"
	ActionReload = "reload"
)

const (
	ServiceTypeRouting = "routing"
)
