package bot

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sipeed/clawcord/pkg/bus"
	"github.com/sipeed/clawcord/pkg/config"
	"github.com/sipeed/clawcord/pkg/events"
	"github.com/sipeed/clawcord/pkg/logger"
	"github.com/sipeed/clawcord/pkg/metrics"
	"github.com/sipeed/clawcord/pkg/providers"
)

type sentMessage struct {
	channelID string
	content   string
}

type fakeGateway struct {
	mu         sync.Mutex
	sent       []sentMessage
	resolved   []string
	sendErr    error
	resolveErr error
	channel    bus.ChannelInfo
}

func (g *fakeGateway) SendMessage(_ context.Context, channelID, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = append(g.sent, sentMessage{channelID, content})
	return nil
}

func (g *fakeGateway) ResolveChannel(_ context.Context, channelID string) (bus.ChannelInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolved = append(g.resolved, channelID)
	if g.resolveErr != nil {
		return bus.ChannelInfo{}, g.resolveErr
	}
	ch := g.channel
	ch.ID = channelID
	return ch, nil
}

type fakeCompleter struct {
	requests []providers.ChatRequest
	response string
	err      error
}

func (c *fakeCompleter) Complete(_ context.Context, req providers.ChatRequest) (string, error) {
	c.requests = append(c.requests, req)
	return c.response, c.err
}

const okCompletion = `{"id":"c1","model":"gpt-4o","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Go is a language."}}],"usage":{"prompt_tokens":3,"completion_tokens":4}}`

func testConfig(completions bool) *config.Config {
	cfg := config.Defaults()
	cfg.Discord.Token = "token"
	cfg.Bot.CompletionsEnabled = completions
	return cfg
}

func newTestHandler(t *testing.T, cfg *config.Config, completer providers.Completer) (*Handler, *fakeGateway, *bus.MessageBus) {
	t.Helper()
	gw := &fakeGateway{}
	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)
	return NewHandler(cfg, gw, completer, metrics.New(), mb), gw, mb
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, logger.Configure(logger.Options{Level: "debug", Format: logger.FormatJSON, Output: &buf}))
	t.Cleanup(func() { _ = logger.Configure(logger.Options{}) })
	return &buf
}

func messageEvent(content string, isBot bool) bus.MessageCreateEvent {
	return bus.MessageCreateEvent{
		Envelope: bus.NewEnvelope(),
		Message: bus.IncomingMessage{
			ID:          "m1",
			ChannelID:   "100",
			AuthorID:    "200",
			AuthorName:  "alice",
			AuthorIsBot: isBot,
			Content:     content,
		},
	}
}

func TestOnReadyLogsConnectedUser(t *testing.T) {
	buf := captureLogs(t)
	h, _, _ := newTestHandler(t, testConfig(false), nil)

	err := h.Handle(context.Background(), bus.ReadyEvent{Envelope: bus.NewEnvelope(), UserID: "1", UserName: "TestBot"})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "TestBot")
	require.Contains(t, out, "is connected")
}

func TestMessagesWithoutSideEffects(t *testing.T) {
	completer := &fakeCompleter{response: okCompletion}

	tests := []struct {
		name    string
		content string
		isBot   bool
	}{
		{name: "bot author with prefix", content: "!ask hi", isBot: true},
		{name: "bot author without prefix", content: "hello", isBot: true},
		{name: "human without prefix", content: "hello !ask", isBot: false},
		{name: "human empty", content: "", isBot: false},
		{name: "human leading space", content: " !ask hi", isBot: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, gw, _ := newTestHandler(t, testConfig(true), completer)

			err := h.Handle(context.Background(), messageEvent(tt.content, tt.isBot))
			require.NoError(t, err)
			require.Empty(t, gw.sent)
			require.Empty(t, gw.resolved)
		})
	}
	require.Empty(t, completer.requests)
}

func TestIgnoredMessagesPublishReason(t *testing.T) {
	h, _, mb := newTestHandler(t, testConfig(false), nil)
	sys := mb.SubscribeSystem("test")

	require.NoError(t, h.OnMessage(context.Background(), messageEvent("!x", true)))

	ev := (<-sys).(events.Event)
	require.Equal(t, events.MessageIgnored, ev.Type)
	require.Equal(t, ReasonBotAuthor, ev.Data.(events.MessageEventData).Reason)
}

func TestPrefixedMessageResolvesChannel(t *testing.T) {
	h, gw, _ := newTestHandler(t, testConfig(false), nil)

	err := h.Handle(context.Background(), messageEvent("!anything at all", false))
	require.NoError(t, err)
	require.Equal(t, []string{"100"}, gw.resolved)
	require.Empty(t, gw.sent)
}

func TestResolveFailureFailsInvocation(t *testing.T) {
	h, gw, _ := newTestHandler(t, testConfig(false), nil)
	gw.resolveErr = errors.New("unknown channel")

	err := h.Handle(context.Background(), messageEvent("!ask hi", false))
	require.Error(t, err)
	require.Contains(t, err.Error(), "resolve channel 100")
	require.Empty(t, gw.sent)
}

func TestCustomPrefix(t *testing.T) {
	cfg := testConfig(false)
	cfg.Bot.Prefix = "?"
	h, gw, _ := newTestHandler(t, cfg, nil)

	require.NoError(t, h.Handle(context.Background(), messageEvent("!ping", false)))
	require.Empty(t, gw.resolved)

	require.NoError(t, h.Handle(context.Background(), messageEvent("?ping", false)))
	require.Len(t, gw.resolved, 1)
}

func TestChannelCreatedSendsGreeting(t *testing.T) {
	buf := captureLogs(t)
	h, gw, _ := newTestHandler(t, testConfig(false), nil)

	ev := bus.ChannelCreateEvent{
		Envelope: bus.NewEnvelope(),
		Channel:  bus.ChannelInfo{ID: "300", GuildID: "1", Name: "general", Type: "guild_text"},
	}
	require.NoError(t, h.Handle(context.Background(), ev))

	require.Equal(t, []sentMessage{{"300", "Hello, World!"}}, gw.sent)
	require.Contains(t, buf.String(), "general")
}

func TestChannelCreatedSendFailureIsLogged(t *testing.T) {
	buf := captureLogs(t)
	h, gw, mb := newTestHandler(t, testConfig(false), nil)
	gw.sendErr = errors.New("missing access")
	sys := mb.SubscribeSystem("test")

	ev := bus.ChannelCreateEvent{Envelope: bus.NewEnvelope(), Channel: bus.ChannelInfo{ID: "300"}}
	require.NotPanics(t, func() {
		require.NoError(t, h.Handle(context.Background(), ev))
	})

	require.Contains(t, buf.String(), "missing access")
	require.Equal(t, events.ChannelCreated, (<-sys).(events.Event).Type)
	require.Equal(t, events.GreetingFailed, (<-sys).(events.Event).Type)
}

func TestAskRepliesWithCompletion(t *testing.T) {
	cfg := testConfig(true)
	cfg.Bot.SystemPrompt = "be brief"
	completer := &fakeCompleter{response: okCompletion}
	h, gw, _ := newTestHandler(t, cfg, completer)

	require.NoError(t, h.Handle(context.Background(), messageEvent("!ASK  what is go? ", false)))

	require.Len(t, completer.requests, 1)
	req := completer.requests[0]
	require.Equal(t, "gpt-4o", req.Model)
	require.Equal(t, []providers.ChatMessage{
		providers.SystemMessage("be brief"),
		providers.UserMessage("what is go?"),
	}, req.Messages)
	require.Equal(t, []sentMessage{{"100", "Go is a language."}}, gw.sent)
}

func TestAskWithoutPromptDoesNothing(t *testing.T) {
	completer := &fakeCompleter{response: okCompletion}
	h, gw, _ := newTestHandler(t, testConfig(true), completer)

	require.NoError(t, h.Handle(context.Background(), messageEvent("!ask", false)))
	require.Empty(t, completer.requests)
	require.Empty(t, gw.sent)
}

func TestAskDisabledByDefault(t *testing.T) {
	completer := &fakeCompleter{response: okCompletion}
	h, gw, _ := newTestHandler(t, testConfig(false), completer)

	require.NoError(t, h.Handle(context.Background(), messageEvent("!ask hi", false)))
	require.Empty(t, completer.requests)
	require.Empty(t, gw.sent)
	require.NotContains(t, h.Commands(), "ask")
}

func TestAskCompletionErrorSendsNothing(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("connection reset")}
	h, gw, _ := newTestHandler(t, testConfig(true), completer)

	err := h.Handle(context.Background(), messageEvent("!ask hi", false))
	require.Error(t, err)
	require.Contains(t, err.Error(), "command ask")
	require.Empty(t, gw.sent)
}

func TestAskMissingAPIKeyFailsFast(t *testing.T) {
	cfg := testConfig(true)
	client := providers.NewCompletionClient(cfg.OpenAI)
	h, gw, _ := newTestHandler(t, cfg, client)

	err := h.Handle(context.Background(), messageEvent("!ask hi", false))
	require.ErrorIs(t, err, providers.ErrMissingAPIKey)
	require.Empty(t, gw.sent)
}

func TestRegisterCustomCommand(t *testing.T) {
	h, gw, _ := newTestHandler(t, testConfig(false), nil)

	var got Invocation
	h.Register("Echo", func(ctx context.Context, inv Invocation) error {
		got = inv
		return h.send(ctx, inv.Message.ChannelID, inv.Args)
	})

	require.NoError(t, h.Handle(context.Background(), messageEvent("!echo hello world", false)))
	require.Equal(t, "echo", got.Name)
	require.Equal(t, "100", got.Channel.ID)
	require.Equal(t, []sentMessage{{"100", "hello world"}}, gw.sent)
}

func TestDirectMessageLogsHomeChannel(t *testing.T) {
	buf := captureLogs(t)
	h, gw, _ := newTestHandler(t, testConfig(false), nil)
	gw.channel = bus.ChannelInfo{Type: "dm", IsDirect: true}

	require.NoError(t, h.Handle(context.Background(), messageEvent("!hi", false)))
	require.Contains(t, buf.String(), `"home_channel_id":100`)
	require.Contains(t, buf.String(), `"home_user_id":200`)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		content, prefix string
		name, args      string
	}{
		{"!ask what is go", "!", "ask", "what is go"},
		{"!Ask", "!", "ask", ""},
		{"!", "!", "", ""},
		{"! ask spaced", "!", "ask", "spaced"},
		{">>run  a  b", ">>", "run", "a  b"},
	}

	for _, tt := range tests {
		name, args := parseCommand(tt.content, tt.prefix)
		require.Equal(t, tt.name, name, tt.content)
		require.Equal(t, tt.args, args, tt.content)
	}
}

func TestSplitMessage(t *testing.T) {
	require.Nil(t, splitMessage("   ", 10))
	require.Equal(t, []string{"short"}, splitMessage("short", 10))

	chunks := splitMessage(strings.Repeat("a", 25), 10)
	require.Equal(t, []string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 5)}, chunks)

	chunks = splitMessage("line one\nline two is longer", 12)
	require.Equal(t, "line one", chunks[0])
	for _, c := range chunks {
		require.LessOrEqual(t, len([]rune(c)), 12)
	}
}
