package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/diagnosa/backend/internal/config"
	"github.com/zhouzirui/diagnosa/backend/internal/handler"
	"github.com/zhouzirui/diagnosa/backend/internal/logging"
	"github.com/zhouzirui/diagnosa/backend/internal/service/ai"
	"github.com/zhouzirui/diagnosa/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(cfg.Log)

	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, using system environment only")
	}

	// Without credentials the chat cannot answer anything, so refuse to start.
	if err := cfg.AI.Validate(); err != nil {
		log.Fatal().Err(err).Str("provider", cfg.AI.Provider).Msg("llm credentials missing")
	}

	completer, err := ai.NewCompleter(ctx, cfg.AI)
	if err != nil {
		log.Fatal().Err(err).Str("model", cfg.AI.Model).Msg("failed to initialize model")
	}
	if err := ai.VerifyModel(ctx, completer, cfg.AI.VerifyModel); err != nil {
		log.Fatal().Err(err).Str("model", cfg.AI.Model).Msg("model check failed")
	}
	log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Dur("timeout", cfg.AI.Timeout).Msg("model ready")

	chatService := chat.NewService(completer, chat.Options{
		Priming: cfg.Chat.Priming,
		Timeout: cfg.AI.Timeout,
		IdleTTL: cfg.Chat.SessionTTL,
	})
	go chatService.RunExpiry(ctx, time.Minute)

	router := handler.NewRouter(chatService, cfg.AI)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("diagnosa backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
