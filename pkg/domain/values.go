// Package domain holds the small set of value types shared across clawcord.
package domain

// ---------------------------------------------------------------------------
// Shared value objects
// ---------------------------------------------------------------------------

// MessageRole represents who authored a turn in a completion conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

func (mr MessageRole) String() string { return string(mr) }

// Valid returns true if the role is one the completion endpoint accepts.
func (mr MessageRole) Valid() bool {
	switch mr {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------

// ConnectionStatus represents the health state of the gateway connection.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusError        ConnectionStatus = "error"
)

func (cs ConnectionStatus) String() string { return string(cs) }
