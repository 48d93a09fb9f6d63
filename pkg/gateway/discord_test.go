package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/clawcord/pkg/bot"
	"github.com/sipeed/clawcord/pkg/bus"
	"github.com/sipeed/clawcord/pkg/config"
	"github.com/sipeed/clawcord/pkg/domain"
)

var _ bot.Messenger = (*Gateway)(nil)

func newTestGateway(t *testing.T) (*Gateway, *bus.MessageBus) {
	t.Helper()
	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)
	g, err := New(config.DiscordConfig{Token: "test-token"}, mb)
	require.NoError(t, err)
	return g, mb
}

func consume(t *testing.T, mb *bus.MessageBus) bus.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := mb.Consume(ctx)
	require.True(t, ok, "expected an event on the bus")
	return ev
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(config.DiscordConfig{}, bus.NewMessageBus())
	require.ErrorIs(t, err, config.ErrMissingBotToken)
}

func TestNewConfiguresSession(t *testing.T) {
	g, _ := newTestGateway(t)
	require.Equal(t, "Bot test-token", g.session.Token)
	require.Equal(t, discordgo.IntentsAll, g.session.Identify.Intents)
	require.Len(t, g.removeHandlers, 5)
	require.Equal(t, string(domain.StatusDisconnected), g.Status()["status"])
}

func TestOnReadyPublishesAndTracksUser(t *testing.T) {
	g, mb := newTestGateway(t)

	g.onReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "42", Username: "TestBot"}})

	ev := consume(t, mb)
	ready, ok := ev.(bus.ReadyEvent)
	require.True(t, ok)
	require.Equal(t, "42", ready.UserID)
	require.Equal(t, "TestBot", ready.UserName)
	require.NotEmpty(t, ready.ID)

	status := g.Status()
	require.Equal(t, string(domain.StatusConnected), status["status"])
	require.Equal(t, "TestBot", status["user_name"])
	require.Contains(t, status, "connected_at")
}

func TestOnReadyWithoutUser(t *testing.T) {
	ev := readyEvent(&discordgo.Ready{})
	require.Empty(t, ev.UserID)
	require.Empty(t, ev.UserName)
	require.Equal(t, bus.KindReady, ev.Kind())
}

func TestOnChannelCreatePublishes(t *testing.T) {
	g, mb := newTestGateway(t)

	g.onChannelCreate(nil, &discordgo.ChannelCreate{Channel: &discordgo.Channel{
		ID:      "c1",
		GuildID: "g1",
		Name:    "general",
		Type:    discordgo.ChannelTypeGuildText,
	}})

	created, ok := consume(t, mb).(bus.ChannelCreateEvent)
	require.True(t, ok)
	require.Equal(t, "c1", created.Channel.ID)
	require.Equal(t, "general", created.Channel.Name)
	require.Equal(t, "guild_text", created.Channel.Type)
	require.False(t, created.Channel.IsDirect)
}

func TestNilPayloadsAreIgnored(t *testing.T) {
	g, mb := newTestGateway(t)

	g.onChannelCreate(nil, &discordgo.ChannelCreate{})
	g.onMessageCreate(nil, &discordgo.MessageCreate{})
	g.onChannelCreate(nil, nil)
	g.onMessageCreate(nil, nil)

	require.Zero(t, mb.Pending())
}

func TestOnMessageCreatePublishes(t *testing.T) {
	g, mb := newTestGateway(t)

	g.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   "!ask hi",
		Author:    &discordgo.User{ID: "u1", Username: "alice", Bot: true},
	}})

	msg, ok := consume(t, mb).(bus.MessageCreateEvent)
	require.True(t, ok)
	require.Equal(t, bus.IncomingMessage{
		ID:          "m1",
		ChannelID:   "c1",
		GuildID:     "g1",
		AuthorID:    "u1",
		AuthorName:  "alice",
		AuthorIsBot: true,
		Content:     "!ask hi",
	}, msg.Message)
}

func TestMessageWithoutAuthor(t *testing.T) {
	ev := messageEvent(&discordgo.Message{ID: "m1", ChannelID: "c1", Content: "x"})
	require.Empty(t, ev.Message.AuthorID)
	require.False(t, ev.Message.AuthorIsBot)
}

func TestDisconnectAndResume(t *testing.T) {
	g, mb := newTestGateway(t)
	system := mb.SubscribeSystem("test")

	g.onReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "1", Username: "b"}})
	g.onDisconnect(nil, &discordgo.Disconnect{})
	require.Equal(t, string(domain.StatusDisconnected), g.Status()["status"])

	select {
	case raw := <-system:
		require.NotNil(t, raw)
	case <-time.After(time.Second):
		t.Fatal("expected a system event")
	}

	g.onResumed(nil, &discordgo.Resumed{})
	require.Equal(t, string(domain.StatusConnected), g.Status()["status"])
}

func TestChannelInfo(t *testing.T) {
	tests := []struct {
		name     string
		typ      discordgo.ChannelType
		wantType string
		direct   bool
	}{
		{"guild text", discordgo.ChannelTypeGuildText, "guild_text", false},
		{"dm", discordgo.ChannelTypeDM, "dm", true},
		{"group dm", discordgo.ChannelTypeGroupDM, "group_dm", true},
		{"voice", discordgo.ChannelTypeGuildVoice, "guild_voice", false},
		{"thread", discordgo.ChannelTypeGuildPublicThread, "guild_public_thread", false},
		{"forum", discordgo.ChannelTypeGuildForum, "guild_forum", false},
		{"unknown", discordgo.ChannelType(99), "type_99", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := channelInfo(&discordgo.Channel{
				ID:       "c1",
				ParentID: "p1",
				Topic:    "t",
				NSFW:     true,
				Type:     tt.typ,
			})
			require.Equal(t, tt.wantType, info.Type)
			require.Equal(t, tt.direct, info.IsDirect)
			require.Equal(t, "p1", info.ParentID)
			require.Equal(t, "t", info.Topic)
			require.True(t, info.NSFW)
		})
	}
}
