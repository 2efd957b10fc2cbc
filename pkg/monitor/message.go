package monitor

import "time"

// EventType tells monitor clients how to interpret an Event
type EventType string

const (
	EventHello    EventType = "hello"     // sent once after connecting
	EventToolCall EventType = "tool_call" // an MCP tool finished
	EventProgram  EventType = "program"   // a BASIC program was written
	EventScreen   EventType = "screen"    // the text screen changed
)

// Event is one JSON message pushed to monitor clients
type Event struct {
	Type       EventType `json:"type"`
	Time       time.Time `json:"time"`
	Tool       string    `json:"tool,omitempty"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"durationMs,omitempty"`
	Content    string    `json:"content,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
}

// request is what clients may send
type request struct {
	Type string `json:"type"` // "refresh" or "keepalive"
}
