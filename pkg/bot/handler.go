// Package bot reacts to gateway events: it greets new channels, filters
// messages and runs prefixed commands.
package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/clawcord/pkg/bus"
	"github.com/sipeed/clawcord/pkg/config"
	channeldomain "github.com/sipeed/clawcord/pkg/domain/channel"
	"github.com/sipeed/clawcord/pkg/events"
	"github.com/sipeed/clawcord/pkg/logger"
	"github.com/sipeed/clawcord/pkg/metrics"
	"github.com/sipeed/clawcord/pkg/providers"
)

// maxMessageLen is the gateway's per-message character limit.
const maxMessageLen = 2000

// Ignore reasons reported in logs and metrics.
const (
	ReasonBotAuthor = "bot_author"
	ReasonNoPrefix  = "no_prefix"
)

// Messenger is the slice of the gateway the handler acts through.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, content string) error
	ResolveChannel(ctx context.Context, channelID string) (bus.ChannelInfo, error)
}

// Invocation is a parsed prefixed command.
type Invocation struct {
	Name    string
	Args    string
	Message bus.IncomingMessage
	Channel bus.ChannelInfo
}

// Command runs a prefixed command. Returned errors are logged by the dispatcher.
type Command func(ctx context.Context, inv Invocation) error

// Handler implements the per-event decision logic. It holds no
// per-conversation state, so invocations may run concurrently.
type Handler struct {
	cfg       config.BotConfig
	model     string
	gateway   Messenger
	completer providers.Completer
	metrics   *metrics.Metrics
	bus       *bus.MessageBus

	mu       sync.RWMutex
	commands map[string]Command
}

// NewHandler wires a handler. completer and mb may be nil; the ask command
// is registered only when completions are enabled and a completer exists.
func NewHandler(cfg *config.Config, gw Messenger, completer providers.Completer, m *metrics.Metrics, mb *bus.MessageBus) *Handler {
	h := &Handler{
		cfg:       cfg.Bot,
		model:     cfg.OpenAI.Model,
		gateway:   gw,
		completer: completer,
		metrics:   m,
		bus:       mb,
		commands:  make(map[string]Command),
	}
	if cfg.Bot.CompletionsEnabled && completer != nil {
		h.Register("ask", h.ask)
	}
	return h
}

// Register adds or replaces a command. Names are case-insensitive.
func (h *Handler) Register(name string, cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[strings.ToLower(name)] = cmd
}

// Commands lists registered command names in sorted order.
func (h *Handler) Commands() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.commands))
	for name := range h.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *Handler) command(name string) (Command, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cmd, ok := h.commands[name]
	return cmd, ok
}

// Handle routes a gateway event to its callback.
func (h *Handler) Handle(ctx context.Context, ev bus.Event) error {
	h.metrics.IncrGatewayEvent(string(ev.Kind()))

	switch e := ev.(type) {
	case bus.ReadyEvent:
		h.OnReady(ctx, e)
		return nil
	case bus.ChannelCreateEvent:
		h.OnChannelCreated(ctx, e)
		return nil
	case bus.MessageCreateEvent:
		return h.OnMessage(ctx, e)
	default:
		return fmt.Errorf("unhandled gateway event %T", ev)
	}
}

// OnReady announces the connected bot account.
func (h *Handler) OnReady(_ context.Context, ev bus.ReadyEvent) {
	logger.InfoCF("bot", fmt.Sprintf("%s is connected!", ev.UserName), map[string]interface{}{
		"user_id":   ev.UserID,
		"user_name": ev.UserName,
	})
	h.publish(events.GatewayReady, events.GatewayEventData{UserID: ev.UserID, UserName: ev.UserName})
}

// OnChannelCreated dumps the channel descriptor and greets the channel.
// A failed greeting is logged; it does not fail the invocation.
func (h *Handler) OnChannelCreated(ctx context.Context, ev bus.ChannelCreateEvent) {
	ch := ev.Channel
	logger.InfoCF("bot", "Created channel", ch.Fields())
	h.publish(events.ChannelCreated, events.ChannelEventData{ChannelID: ch.ID, GuildID: ch.GuildID, Name: ch.Name})

	if err := h.send(ctx, ch.ID, h.cfg.Greeting); err != nil {
		logger.ErrorCF("bot", "Greeting failed", map[string]interface{}{
			"channel_id": ch.ID,
			"error":      err.Error(),
		})
		h.publish(events.GreetingFailed, events.ChannelEventData{ChannelID: ch.ID, GuildID: ch.GuildID, Error: err.Error()})
		return
	}
	h.publish(events.GreetingSent, events.ChannelEventData{ChannelID: ch.ID, GuildID: ch.GuildID, Name: ch.Name})
}

// OnMessage runs the filter pipeline: bot authors and unprefixed messages
// are ignored, everything else resolves its channel and runs the command.
func (h *Handler) OnMessage(ctx context.Context, ev bus.MessageCreateEvent) error {
	msg := ev.Message

	if msg.AuthorIsBot {
		h.ignore(msg, ReasonBotAuthor)
		return nil
	}
	if !strings.HasPrefix(msg.Content, h.cfg.Prefix) {
		h.ignore(msg, ReasonNoPrefix)
		return nil
	}

	channel, err := h.gateway.ResolveChannel(ctx, msg.ChannelID)
	if err != nil {
		return fmt.Errorf("resolve channel %s: %w", msg.ChannelID, err)
	}

	name, args := parseCommand(msg.Content, h.cfg.Prefix)
	h.publish(events.MessageAccepted, events.MessageEventData{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		From:      msg.AuthorID,
		Preview:   events.Preview(msg.Content, 200),
		Command:   name,
	})

	if channel.IsDirect {
		logHomeChannel(channel, msg)
	}

	cmd, ok := h.command(name)
	if !ok {
		h.metrics.IncrCommand("unknown", "ignored")
		logger.DebugCF("bot", "No command registered", map[string]interface{}{
			"command":    name,
			"channel_id": msg.ChannelID,
		})
		return nil
	}

	inv := Invocation{Name: name, Args: args, Message: msg, Channel: channel}
	if err := cmd(ctx, inv); err != nil {
		h.metrics.IncrCommand(name, "error")
		return fmt.Errorf("command %s: %w", name, err)
	}
	h.metrics.IncrCommand(name, "ok")
	return nil
}

// ask sends a single-turn conversation to the completion endpoint and
// replies with the first choice.
func (h *Handler) ask(ctx context.Context, inv Invocation) error {
	prompt := strings.TrimSpace(inv.Args)
	if prompt == "" {
		return nil
	}

	turns := make([]providers.ChatMessage, 0, 2)
	if h.cfg.SystemPrompt != "" {
		turns = append(turns, providers.SystemMessage(h.cfg.SystemPrompt))
	}
	turns = append(turns, providers.UserMessage(prompt))
	req := providers.NewChatRequest(h.model, turns...)

	start := time.Now()
	raw, err := h.completer.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		h.metrics.RecordCompletion("error", elapsed)
		h.publish(events.CompletionFailed, events.CompletionEventData{
			ChannelID:  inv.Message.ChannelID,
			Model:      h.model,
			DurationMS: elapsed.Milliseconds(),
			Error:      err.Error(),
		})
		return err
	}

	completion, err := providers.ParseCompletion(raw)
	if err != nil {
		h.metrics.RecordCompletion("invalid", elapsed)
		return err
	}
	h.metrics.RecordCompletion("ok", elapsed)
	h.metrics.RecordTokens(completion.PromptTokens, completion.CompletionTokens)
	h.publish(events.CompletionSucceeded, events.CompletionEventData{
		ChannelID:        inv.Message.ChannelID,
		Model:            completion.Model,
		DurationMS:       elapsed.Milliseconds(),
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
	})

	for _, chunk := range splitMessage(completion.Text, maxMessageLen) {
		if err := h.send(ctx, inv.Message.ChannelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) send(ctx context.Context, channelID, content string) error {
	if err := h.gateway.SendMessage(ctx, channelID, content); err != nil {
		h.metrics.IncrSent("error")
		return fmt.Errorf("send to %s: %w", channelID, err)
	}
	h.metrics.IncrSent("ok")
	h.publish(events.MessageOutbound, events.MessageEventData{
		ChannelID: channelID,
		Preview:   events.Preview(content, 200),
	})
	return nil
}

func (h *Handler) ignore(msg bus.IncomingMessage, reason string) {
	h.metrics.IncrIgnored(reason)
	h.publish(events.MessageIgnored, events.MessageEventData{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		From:      msg.AuthorID,
		Preview:   events.Preview(msg.Content, 200),
		Reason:    reason,
	})
}

func (h *Handler) publish(eventType string, data interface{}) {
	if h.bus == nil {
		return
	}
	h.bus.PublishSystem(events.New(eventType, "bot", data))
}

// parseCommand splits "!ask what is go" into ("ask", "what is go").
func parseCommand(content, prefix string) (name, args string) {
	rest := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	name, args, _ = strings.Cut(rest, " ")
	return strings.ToLower(name), strings.TrimSpace(args)
}

// logHomeChannel records the direct-message binding for diagnostics only.
func logHomeChannel(channel bus.ChannelInfo, msg bus.IncomingMessage) {
	channelID, err := strconv.ParseUint(channel.ID, 10, 64)
	if err != nil {
		return
	}
	home := channeldomain.NewHomeChannel(channelID)
	if userID, err := strconv.ParseUint(msg.AuthorID, 10, 64); err == nil {
		home.SetUserID(userID)
	}
	logger.DebugCF("bot", "Direct message channel", home.Fields())
}

// splitMessage breaks text into chunks of at most max runes, preferring
// newline boundaries.
func splitMessage(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > max {
		cut := max
		for i := max; i > max/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}
