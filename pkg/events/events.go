// Package events defines the typed system events clawcord emits for
// observers (the ops websocket stream, tests). Every event published on the
// bus system tap uses one of these types.
package events

import "time"

// --- Event Envelope ---

// Event is the universal envelope for all system events.
type Event struct {
	// Type identifies the event (e.g., "gateway.ready", "message.ignored")
	Type string `json:"type"`

	// Source identifies who emitted the event
	Source string `json:"source"`

	// Timestamp is when the event was emitted
	Timestamp time.Time `json:"timestamp"`

	// Data is the typed payload
	Data interface{} `json:"data"`
}

// New creates a timestamped event.
func New(eventType, source string, data interface{}) Event {
	return Event{
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// --- Event Type Constants ---

const (
	// Gateway lifecycle events
	GatewayConnecting   = "gateway.connecting"
	GatewayReady        = "gateway.ready"
	GatewayDisconnected = "gateway.disconnected"
	GatewayError        = "gateway.error"

	// Channel events
	ChannelCreated = "channel.created"
	GreetingSent   = "channel.greeting_sent"
	GreetingFailed = "channel.greeting_failed"

	// Message flow events
	MessageAccepted = "message.accepted"
	MessageIgnored  = "message.ignored"
	MessageOutbound = "message.outbound"

	// Completion events
	CompletionSucceeded = "completion.succeeded"
	CompletionFailed    = "completion.failed"

	// Dispatcher events
	HandlerFailed = "handler.failed"

	// System events
	SystemStarted  = "system.started"
	SystemStopping = "system.stopping"
)

// --- Typed Payloads ---

// GatewayEventData is the payload for gateway lifecycle events.
type GatewayEventData struct {
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ChannelEventData is the payload for channel events.
type ChannelEventData struct {
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MessageEventData is the payload for message flow events.
type MessageEventData struct {
	MessageID string `json:"message_id,omitempty"`
	ChannelID string `json:"channel_id"`
	From      string `json:"from,omitempty"`
	Preview   string `json:"preview"` // truncated content
	Reason    string `json:"reason,omitempty"`
	Command   string `json:"command,omitempty"`
}

// CompletionEventData is the payload for completion events.
type CompletionEventData struct {
	ChannelID        string `json:"channel_id"`
	Model            string `json:"model"`
	DurationMS       int64  `json:"duration_ms"`
	PromptTokens     int64  `json:"prompt_tokens,omitempty"`
	CompletionTokens int64  `json:"completion_tokens,omitempty"`
	Error            string `json:"error,omitempty"`
}

// HandlerEventData is the payload for dispatcher failures.
type HandlerEventData struct {
	EventID   string `json:"event_id"`
	EventKind string `json:"event_kind"`
	Error     string `json:"error"`
	Panic     bool   `json:"panic,omitempty"`
}

// SystemEventData is the payload for process lifecycle events.
type SystemEventData struct {
	Uptime  int64  `json:"uptime_seconds,omitempty"`
	Message string `json:"message,omitempty"`
}

// Preview truncates content for event payloads.
func Preview(content string, max int) string {
	r := []rune(content)
	if len(r) <= max {
		return content
	}
	return string(r[:max]) + "…"
}
