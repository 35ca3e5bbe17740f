package botlink

import (
	"encoding/json"
	"errors"
	"fmt"

	"bubbles/internal/unified"
)

type FrameType string

const (
	FrameAuth     FrameType = "auth"
	FrameReady    FrameType = "ready"
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FramePing     FrameType = "ping"
)

var (
	ErrNotConnected = errors.New("bot link is not connected")
	ErrDisconnected = errors.New("bot link disconnected")
	ErrUnauthorized = errors.New("bot link authentication failed")
)

// RemoteError is a failure reported by the bot side of the link.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bot link remote error: %s", e.Message)
}

// Frame is every message exchanged over the link. Which fields are set
// depends on Type.
type Frame struct {
	Type    FrameType                  `json:"type"`
	ID      string                     `json:"id,omitempty"`
	Token   string                     `json:"token,omitempty"`
	Request *unified.NormalizedRequest `json:"request,omitempty"`
	Success *bool                      `json:"success,omitempty"`
	Data    json.RawMessage            `json:"data,omitempty"`
	Error   string                     `json:"error,omitempty"`
	Trace   map[string]string          `json:"trace,omitempty"`
}

func authFrame(token string) Frame { return Frame{Type: FrameAuth, Token: token} }

func readyFrame() Frame { return Frame{Type: FrameReady} }

func pingFrame() Frame { return Frame{Type: FramePing} }

func requestFrame(id string, req *unified.NormalizedRequest, trace map[string]string) Frame {
	return Frame{Type: FrameRequest, ID: id, Request: req, Trace: trace}
}

func responseFrame(id string, data interface{}, err error) Frame {
	success := err == nil
	f := Frame{Type: FrameResponse, ID: id, Success: &success}
	if err != nil {
		f.Error = err.Error()
		return f
	}
	if data != nil {
		raw, mErr := json.Marshal(data)
		if mErr != nil {
			success = false
			f.Error = fmt.Sprintf("failed to encode response: %v", mErr)
			return f
		}
		f.Data = raw
	}
	return f
}

// result turns a response frame into the caller's return values.
func (f Frame) result() (json.RawMessage, error) {
	if f.Success == nil || !*f.Success {
		msg := f.Error
		if msg == "" {
			msg = "request failed"
		}
		return nil, &RemoteError{Message: msg}
	}
	return f.Data, nil
}
