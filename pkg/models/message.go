package models

import "time"

// MessageEnvelope is the wire shape of every message on the command topics.
// For requests Payload holds the raw command; for responses it holds the
// unified response.
type MessageEnvelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  Metadata               `json:"metadata"`
}

type Metadata struct {
	TraceID    string          `json:"trace_id,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	ReplyTo    string          `json:"reply_to,omitempty"`
	DeadLetter *DeadLetterInfo `json:"dead_letter,omitempty"`
}

// DeadLetterInfo is attached when a message is moved to the DLQ.
type DeadLetterInfo struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	At          time.Time `json:"at"`
}
