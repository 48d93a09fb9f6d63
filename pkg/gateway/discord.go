// Package gateway adapts the Discord gateway session to the clawcord bus.
//
// discordgo owns the websocket, authentication, heartbeats and reconnect
// backoff. This package only translates its events into bus variants and
// exposes the two REST actions the bot needs: send a message and fetch a
// channel.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/clawcord/pkg/bus"
	"github.com/sipeed/clawcord/pkg/config"
	"github.com/sipeed/clawcord/pkg/domain"
	"github.com/sipeed/clawcord/pkg/events"
	"github.com/sipeed/clawcord/pkg/logger"
)

// Gateway owns the Discord session for the lifetime of the process.
type Gateway struct {
	session *discordgo.Session
	bus     *bus.MessageBus

	mu          sync.RWMutex
	status      domain.ConnectionStatus
	userID      string
	userName    string
	connectedAt time.Time
	lastError   string

	removeHandlers []func()
}

// New creates a session authenticated with the bot token, subscribed to
// every gateway intent. No connection is made until Run.
func New(cfg config.DiscordConfig, mb *bus.MessageBus) (*Gateway, error) {
	if cfg.Token == "" {
		return nil, config.ErrMissingBotToken
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsAll

	g := &Gateway{
		session: session,
		bus:     mb,
		status:  domain.StatusDisconnected,
	}
	g.removeHandlers = append(g.removeHandlers,
		session.AddHandler(g.onReady),
		session.AddHandler(g.onChannelCreate),
		session.AddHandler(g.onMessageCreate),
		session.AddHandler(g.onDisconnect),
		session.AddHandler(g.onResumed),
	)
	return g, nil
}

// Run opens the gateway connection and blocks until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	g.setStatus(domain.StatusConnecting, "")
	g.bus.PublishSystem(events.New(events.GatewayConnecting, "gateway", nil))

	if err := g.session.Open(); err != nil {
		g.setStatus(domain.StatusError, err.Error())
		g.bus.PublishSystem(events.New(events.GatewayError, "gateway", events.GatewayEventData{Error: err.Error()}))
		return fmt.Errorf("open discord gateway: %w", err)
	}
	logger.InfoC("gateway", "Gateway connection opened")

	<-ctx.Done()
	return g.Close()
}

// Close detaches handlers and closes the websocket.
func (g *Gateway) Close() error {
	for _, remove := range g.removeHandlers {
		remove()
	}
	g.removeHandlers = nil

	err := g.session.Close()
	g.setStatus(domain.StatusDisconnected, "")
	logger.InfoC("gateway", "Gateway connection closed")
	return err
}

// SendMessage posts content to a channel.
func (g *Gateway) SendMessage(ctx context.Context, channelID, content string) error {
	_, err := g.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return err
}

// ResolveChannel returns the channel from the state cache, falling back to
// the REST API.
func (g *Gateway) ResolveChannel(ctx context.Context, channelID string) (bus.ChannelInfo, error) {
	if g.session.State != nil {
		if ch, err := g.session.State.Channel(channelID); err == nil {
			return channelInfo(ch), nil
		}
	}
	ch, err := g.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return bus.ChannelInfo{}, err
	}
	return channelInfo(ch), nil
}

// Status reports the connection state for the ops server.
func (g *Gateway) Status() map[string]interface{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	status := map[string]interface{}{
		"status":    string(g.status),
		"user_id":   g.userID,
		"user_name": g.userName,
	}
	if !g.connectedAt.IsZero() {
		status["connected_at"] = g.connectedAt.Format(time.RFC3339)
	}
	if g.lastError != "" {
		status["last_error"] = g.lastError
	}
	if g.status == domain.StatusConnected {
		status["heartbeat_latency_ms"] = g.session.HeartbeatLatency().Milliseconds()
	}
	return status
}

func (g *Gateway) setStatus(status domain.ConnectionStatus, errMsg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = status
	if errMsg != "" {
		g.lastError = errMsg
	}
}

// --- discordgo callbacks ---

func (g *Gateway) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	ev := readyEvent(r)

	g.mu.Lock()
	g.status = domain.StatusConnected
	g.userID = ev.UserID
	g.userName = ev.UserName
	g.connectedAt = ev.ReceivedAt
	g.mu.Unlock()

	g.bus.Publish(ev)
}

func (g *Gateway) onChannelCreate(_ *discordgo.Session, c *discordgo.ChannelCreate) {
	if c == nil || c.Channel == nil {
		return
	}
	g.bus.Publish(bus.ChannelCreateEvent{Envelope: bus.NewEnvelope(), Channel: channelInfo(c.Channel)})
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	g.bus.Publish(messageEvent(m.Message))
}

func (g *Gateway) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	g.setStatus(domain.StatusDisconnected, "")
	logger.WarnC("gateway", "Gateway disconnected; discordgo will reconnect")
	g.bus.PublishSystem(events.New(events.GatewayDisconnected, "gateway", nil))
}

func (g *Gateway) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	g.setStatus(domain.StatusConnected, "")
	logger.InfoC("gateway", "Gateway session resumed")
}

// --- conversions ---

func readyEvent(r *discordgo.Ready) bus.ReadyEvent {
	ev := bus.ReadyEvent{Envelope: bus.NewEnvelope()}
	if r != nil && r.User != nil {
		ev.UserID = r.User.ID
		ev.UserName = r.User.Username
	}
	return ev
}

func messageEvent(m *discordgo.Message) bus.MessageCreateEvent {
	msg := bus.IncomingMessage{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.Username
		msg.AuthorIsBot = m.Author.Bot
	}
	return bus.MessageCreateEvent{Envelope: bus.NewEnvelope(), Message: msg}
}

func channelInfo(c *discordgo.Channel) bus.ChannelInfo {
	return bus.ChannelInfo{
		ID:       c.ID,
		GuildID:  c.GuildID,
		Name:     c.Name,
		Type:     channelTypeName(c.Type),
		ParentID: c.ParentID,
		Topic:    c.Topic,
		NSFW:     c.NSFW,
		IsDirect: c.Type == discordgo.ChannelTypeDM || c.Type == discordgo.ChannelTypeGroupDM,
	}
}

func channelTypeName(t discordgo.ChannelType) string {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return "guild_text"
	case discordgo.ChannelTypeDM:
		return "dm"
	case discordgo.ChannelTypeGuildVoice:
		return "guild_voice"
	case discordgo.ChannelTypeGroupDM:
		return "group_dm"
	case discordgo.ChannelTypeGuildCategory:
		return "guild_category"
	case discordgo.ChannelTypeGuildNews:
		return "guild_news"
	case discordgo.ChannelTypeGuildNewsThread:
		return "guild_news_thread"
	case discordgo.ChannelTypeGuildPublicThread:
		return "guild_public_thread"
	case discordgo.ChannelTypeGuildPrivateThread:
		return "guild_private_thread"
	case discordgo.ChannelTypeGuildStageVoice:
		return "guild_stage_voice"
	case discordgo.ChannelTypeGuildForum:
		return "guild_forum"
	default:
		return fmt.Sprintf("type_%d", int(t))
	}
}
