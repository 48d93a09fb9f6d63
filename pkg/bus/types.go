package bus

import (
	"time"

	"github.com/google/uuid"
)

// Kind names a gateway event variant.
type Kind string

const (
	KindReady         Kind = "ready"
	KindChannelCreate Kind = "channel_create"
	KindMessageCreate Kind = "message_create"
)

// Event is one of ReadyEvent, ChannelCreateEvent or MessageCreateEvent.
// The set is closed: only this package can add variants.
type Event interface {
	Kind() Kind
	Meta() Envelope
	gatewayEvent()
}

// Envelope carries identity shared by every variant.
type Envelope struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewEnvelope stamps a fresh event ID and receive time.
func NewEnvelope() Envelope {
	return Envelope{ID: uuid.NewString(), ReceivedAt: time.Now().UTC()}
}

// ChannelInfo describes a gateway channel independently of the SDK types.
type ChannelInfo struct {
	ID       string `json:"id"`
	GuildID  string `json:"guild_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type"`
	ParentID string `json:"parent_id,omitempty"`
	Topic    string `json:"topic,omitempty"`
	NSFW     bool   `json:"nsfw,omitempty"`
	IsDirect bool   `json:"is_direct"`
}

// Fields renders the descriptor for structured logs.
func (c ChannelInfo) Fields() map[string]interface{} {
	return map[string]interface{}{
		"channel_id":   c.ID,
		"guild_id":     c.GuildID,
		"channel_name": c.Name,
		"channel_type": c.Type,
		"parent_id":    c.ParentID,
		"topic":        c.Topic,
		"nsfw":         c.NSFW,
		"is_direct":    c.IsDirect,
	}
}

// IncomingMessage is a message received from the gateway.
type IncomingMessage struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channel_id"`
	GuildID     string `json:"guild_id,omitempty"`
	AuthorID    string `json:"author_id"`
	AuthorName  string `json:"author_name"`
	AuthorIsBot bool   `json:"author_is_bot"`
	Content     string `json:"content"`
}

// ReadyEvent fires once the gateway session is established.
type ReadyEvent struct {
	Envelope
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// ChannelCreateEvent fires when a channel becomes visible to the bot.
type ChannelCreateEvent struct {
	Envelope
	Channel ChannelInfo `json:"channel"`
}

// MessageCreateEvent fires for every message the bot can see.
type MessageCreateEvent struct {
	Envelope
	Message IncomingMessage `json:"message"`
}

func (e ReadyEvent) Kind() Kind         { return KindReady }
func (e ChannelCreateEvent) Kind() Kind { return KindChannelCreate }
func (e MessageCreateEvent) Kind() Kind { return KindMessageCreate }

func (e ReadyEvent) Meta() Envelope         { return e.Envelope }
func (e ChannelCreateEvent) Meta() Envelope { return e.Envelope }
func (e MessageCreateEvent) Meta() Envelope { return e.Envelope }

func (ReadyEvent) gatewayEvent()         {}
func (ChannelCreateEvent) gatewayEvent() {}
func (MessageCreateEvent) gatewayEvent() {}
