// Command clawcord runs the Discord bot.
//
// Configuration comes from the environment (optionally seeded from .env)
// layered over an optional YAML file; see pkg/config.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sipeed/clawcord/pkg/api"
	"github.com/sipeed/clawcord/pkg/bot"
	"github.com/sipeed/clawcord/pkg/bus"
	"github.com/sipeed/clawcord/pkg/config"
	"github.com/sipeed/clawcord/pkg/events"
	"github.com/sipeed/clawcord/pkg/gateway"
	"github.com/sipeed/clawcord/pkg/logger"
	"github.com/sipeed/clawcord/pkg/metrics"
	"github.com/sipeed/clawcord/pkg/providers"
)

func main() {
	check := flag.Bool("check", false, "validate configuration and exit without connecting")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		logger.WarnCF("main", "Could not read .env file", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		logger.FatalCF("main", "Invalid configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := logger.Configure(logger.Options{
		Level:  cfg.Log.Level,
		Format: logger.Format(cfg.Log.Format),
	}); err != nil {
		logger.FatalCF("main", "Invalid log configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if cfg.OpenAI.APIKey == "" {
		logger.WarnC("main", "OPENAI_API_KEY is not set; completion requests will fail")
	}

	completer := providers.NewCompletionClient(cfg.OpenAI)

	if *check {
		if err := runCheck(os.Stdout, cfg, completer); err != nil {
			logger.FatalCF("main", "Check failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}

	if err := run(cfg, completer); err != nil {
		logger.FatalCF("main", "clawcord stopped with error", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func run(cfg *config.Config, completer providers.Completer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	mb := bus.NewMessageBus()
	defer mb.Close()

	gw, err := gateway.New(cfg.Discord, mb)
	if err != nil {
		return err
	}

	handler := bot.NewHandler(cfg, gw, completer, m, mb)
	dispatcher := bot.NewDispatcher(mb, handler, m, cfg.Bot.Workers)

	var ops *api.Server
	if cfg.Ops.Addr != "" {
		ops = api.NewServer(cfg, gw, mb, m)
		if err := ops.Start(ctx); err != nil {
			return err
		}
	}

	startTime := time.Now()
	mb.PublishSystem(events.New(events.SystemStarted, "main", events.SystemEventData{Message: "clawcord started"}))
	logger.InfoCF("main", "clawcord started", map[string]interface{}{
		"commands": handler.Commands(),
		"workers":  cfg.Bot.Workers,
		"ops_addr": cfg.Ops.Addr,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gw.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	runErr := g.Wait()

	uptime := time.Since(startTime)
	mb.PublishSystem(events.New(events.SystemStopping, "main", events.SystemEventData{Uptime: int64(uptime.Seconds())}))
	logger.InfoCF("main", "clawcord shutting down", map[string]interface{}{
		"uptime": uptime.Round(time.Second).String(),
	})

	if ops != nil {
		if err := ops.Stop(); err != nil {
			logger.ErrorCF("main", "Ops server shutdown failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return runErr
}
