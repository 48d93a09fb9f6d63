// Event bridge: forwards bus taps to the websocket hub. Gateway events and
// system events fan out to every connected client without taking anything
// from the dispatcher queue.
package api

import (
	"context"

	"github.com/sipeed/clawcord/pkg/bus"
	"github.com/sipeed/clawcord/pkg/events"
	"github.com/sipeed/clawcord/pkg/logger"
)

const previewLen = 200

// EventBridge connects the message bus to the websocket hub.
type EventBridge struct {
	bus *bus.MessageBus
	hub *WSHub
}

func NewEventBridge(mb *bus.MessageBus, hub *WSHub) *EventBridge {
	return &EventBridge{bus: mb, hub: hub}
}

// Run subscribes to the bus taps and starts the forwarding loops. The
// loops end when ctx is done or the bus closes.
func (eb *EventBridge) Run(ctx context.Context) {
	if eb.bus == nil {
		return
	}
	logger.InfoC("events", "Event bridge started")

	gatewayTap := eb.bus.SubscribeEvents("event-bridge")
	systemTap := eb.bus.SubscribeSystem("event-bridge")

	go eb.forward(ctx, gatewayTap, eb.forwardGateway)
	go eb.forward(ctx, systemTap, eb.forwardSystem)
}

func (eb *EventBridge) forward(ctx context.Context, tap <-chan interface{}, fn func(interface{})) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-tap:
			if !ok {
				return
			}
			fn(raw)
		}
	}
}

func (eb *EventBridge) forwardGateway(raw interface{}) {
	ev, ok := raw.(bus.Event)
	if !ok {
		return
	}
	eb.hub.Broadcast("gateway."+string(ev.Kind()), summarize(ev))
}

func (eb *EventBridge) forwardSystem(raw interface{}) {
	if evt, ok := raw.(events.Event); ok {
		eb.hub.Broadcast(evt.Type, evt.Data)
	}
}

// summarize keeps websocket frames small; message bodies are truncated.
func summarize(ev bus.Event) map[string]interface{} {
	data := map[string]interface{}{
		"id":          ev.Meta().ID,
		"received_at": ev.Meta().ReceivedAt,
	}
	switch e := ev.(type) {
	case bus.ReadyEvent:
		data["user_id"] = e.UserID
		data["user_name"] = e.UserName
	case bus.ChannelCreateEvent:
		data["channel_id"] = e.Channel.ID
		data["channel_name"] = e.Channel.Name
		data["channel_type"] = e.Channel.Type
		data["is_direct"] = e.Channel.IsDirect
	case bus.MessageCreateEvent:
		data["message_id"] = e.Message.ID
		data["channel_id"] = e.Message.ChannelID
		data["author"] = e.Message.AuthorName
		data["author_is_bot"] = e.Message.AuthorIsBot
		data["preview"] = events.Preview(e.Message.Content, previewLen)
	}
	return data
}
