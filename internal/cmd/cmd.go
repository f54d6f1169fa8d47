package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danilofalcao/ai-relay/internal/backend/openai"
	"github.com/danilofalcao/ai-relay/internal/backend/openrouter"
	"github.com/danilofalcao/ai-relay/internal/relay"
	"github.com/danilofalcao/ai-relay/internal/server"
	"github.com/danilofalcao/ai-relay/internal/server/logger"
	"github.com/danilofalcao/ai-relay/internal/server/middleware"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 10 * time.Second

func Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	exitCh := make(chan string, 1)

	cfg, err := LoadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal(err)
	}

	lgr := logger.New(ctx, "cmd", logger.LevelFromString(cfg.Loglevel), exitCh)
	for _, w := range cfg.Warnings() {
		lgr.Warn(ctx, w)
	}

	rl, err := newRelay(cfg)
	if err != nil {
		log.Fatal(errors.Wrap(err, "error creating relay"))
	}

	svr, err := server.New(ctx, server.Options{
		Port:     cfg.Port,
		Relay:    rl,
		LogLevel: cfg.Loglevel,
		Cors: middleware.CorsOptions{
			AllowedOrigin:  cfg.AllowedOrigin,
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		},
		ExitCh: exitCh,
	})
	if err != nil {
		log.Fatalf("unable to start server %s", err.Error())
	}

	// Start reports its own failure on exitCh
	go svr.Start()

	select {
	case s := <-exitCh:
		log.Fatalf("killed with message %s", s)
	case <-ctx.Done():
		lgr.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svr.Shutdown(shutdownCtx); err != nil {
			lgr.Error(shutdownCtx, errors.Wrap(err, "error shutting down").Error())
		}
	}
}

func newRelay(cfg *Config) (*relay.Relay, error) {
	return relay.New(relay.Options{
		Primary: openai.NewOpenaiBackend(openai.Options{
			Endpoint: cfg.Openai.Endpoint,
			ApiKey:   cfg.Openai.Apikey,
			Timeout:  cfg.Timeout,
		}),
		Secondary: openrouter.NewOpenrouterBackend(openrouter.Options{
			Endpoint: cfg.Openrouter.Endpoint,
			ApiKey:   cfg.Openrouter.Apikey,
			Timeout:  cfg.Timeout,
		}),
		Models: cfg.Openrouter.Models,
	})
}
