package gateway

import "encoding/json"

// FrameType identifies the kind of frame sent over the WebSocket connection.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// Frame is the envelope exchanged between client and server over WebSocket.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`      // request/response correlation ID
	Method  string          `json:"method,omitempty"`  // RPC method name (request only)
	Event   string          `json:"event,omitempty"`   // event name (event only)
	Payload json.RawMessage `json:"payload,omitempty"` // request params, response result or event body
	Error   *FrameError     `json:"error,omitempty"`   // response only
}

// FrameError carries a domain error code and its message.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event names pushed to every connected client.
const (
	EventThreadCreated = "thread.created"
	EventThreadDeleted = "thread.deleted"
	EventThreadUpdated = "thread.updated"
)

// ThreadEvent is the payload of the thread.* events.
type ThreadEvent struct {
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id"`
	Agent     string `json:"agent,omitempty"`
}
