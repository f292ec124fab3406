package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"

	"moodreply/app/api"
	"moodreply/app/config"
	"moodreply/app/label"
	"moodreply/app/mcptool"
	"moodreply/app/service/conversation"
	"moodreply/app/service/engine"
	"moodreply/app/service/queue"
	"moodreply/app/service/selector"
	"moodreply/app/service/session"
	"moodreply/app/service/template"
	"moodreply/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer slog.Info("Waiting for services to finish...")

	mylog.Preinit()
	loadDotEnv()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load(envOr("CONFIG_PATH", config.DefaultPath))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, label.New)
	do.Provide(di, template.New)
	do.Provide(di, conversation.New)
	do.Provide(di, selector.New)
	do.Provide(di, session.New)
	do.Provide(di, queue.New)
	do.Provide(di, engine.New)
	do.Provide(di, api.New)
	do.Provide(di, mcptool.New)

	// templates and valence are validated here so bad config aborts startup
	sessionMgr, err := do.Invoke[*session.Manager](di)
	if err != nil {
		log.Fatalf("responder init failed: %v", err)
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		slog.Info("Shutting down...")

		cancel()
	}()

	g, ctx := errgroup.WithContext(appCtx)

	g.Go(func() error {
		sessionMgr.RunEvictionLoop(ctx)
		return nil
	})

	g.Go(func() error {
		defer cancel()

		switch cfg.Mode {
		case config.ModeConsole:
			return do.MustInvoke[*engine.Service](di).Run(ctx, os.Stdin)
		case config.ModeMCP:
			return do.MustInvoke[*mcptool.Server](di).Run(ctx, os.Stdin, os.Stdout)
		default:
			return do.MustInvoke[*api.Server](di).Run(ctx)
		}
	})

	slog.Info("Service started", "mode", cfg.Mode)

	if err = g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}
}

func loadDotEnv() {
	for _, path := range []string{".env.local", ".env"} {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			log.Fatalf("failed to load %s: %v", path, err)
		}

		slog.Info("Loaded env", "path", path)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
