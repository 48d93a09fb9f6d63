package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sipeed/clawcord/pkg/bot"
	"github.com/sipeed/clawcord/pkg/config"
	"github.com/sipeed/clawcord/pkg/providers"
)

// runCheck reports what the loaded configuration would run, without
// opening the gateway or calling the completion endpoint.
func runCheck(w io.Writer, cfg *config.Config, completer providers.Completer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Fprintln(w, "✓ Configuration loaded")
	fmt.Fprintf(w, "✓ Command prefix: %q\n", cfg.Bot.Prefix)
	fmt.Fprintf(w, "✓ Dispatcher workers: %d\n", cfg.Bot.Workers)

	handler := bot.NewHandler(cfg, nil, completer, nil, nil)
	commands := handler.Commands()
	if len(commands) == 0 {
		fmt.Fprintln(w, "✓ Commands: none")
	} else {
		fmt.Fprintf(w, "✓ Commands: %s\n", strings.Join(commands, ", "))
	}

	switch {
	case !cfg.Bot.CompletionsEnabled:
		fmt.Fprintln(w, "- Completions disabled")
	case cfg.OpenAI.APIKey == "":
		fmt.Fprintf(w, "⚠ Completions enabled but OPENAI_API_KEY is not set (model %s)\n", cfg.OpenAI.Model)
	default:
		fmt.Fprintf(w, "✓ Completions enabled: model %s at %s\n", cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	}

	if cfg.Ops.Addr == "" {
		fmt.Fprintln(w, "- Ops server disabled")
	} else {
		fmt.Fprintf(w, "✓ Ops server: %s\n", cfg.Ops.Addr)
	}
	return nil
}
