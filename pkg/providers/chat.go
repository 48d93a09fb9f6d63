package providers

import "github.com/sipeed/clawcord/pkg/domain"

// ChatMessage is a single conversation turn sent to the completion endpoint.
type ChatMessage struct {
	Role    domain.MessageRole `json:"role"`
	Content string             `json:"content"`
}

// ChatRequest bundles a model identifier with the conversation to complete.
// Messages are sent in slice order, which is the conversation order.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// NewChatRequest builds a request owning its own copy of messages.
func NewChatRequest(model string, messages ...ChatMessage) ChatRequest {
	msgs := make([]ChatMessage, len(messages))
	copy(msgs, messages)
	return ChatRequest{Model: model, Messages: msgs}
}

func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: domain.RoleSystem, Content: content}
}

func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: domain.RoleUser, Content: content}
}

func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: domain.RoleAssistant, Content: content}
}
