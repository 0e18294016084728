// Package main is the entry point for the NumDuel coordination server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"numduel/internal/config"
	"numduel/internal/handler"
	"numduel/internal/pkg/db"
	"numduel/internal/service"
	"numduel/internal/store"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Initialize record store
	st := store.NewPostgres(dbPool.Pool)
	if err := st.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize services
	sessionService := service.NewSessionService(st, cfg.Game)
	matchmakingService := service.NewMatchmakingService(st, cfg.Game, sessionService)
	challengeService := service.NewChallengeService(st, cfg.Game, sessionService)
	leagueService := service.NewLeagueService(st, cfg.League)

	// Initialize handlers
	auth := handler.NewAuth(cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	router := handler.NewRouter(handler.Deps{
		Auth:        auth,
		Sessions:    handler.NewSessionHandler(sessionService, leagueService),
		Matchmaking: handler.NewMatchmakingHandler(matchmakingService),
		Leagues:     handler.NewLeagueHandler(leagueService),
		Challenges:  handler.NewChallengeHandler(challengeService),
		Events:      handler.NewEventsHandler(st),
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Change-feed listener
	g.Go(func() error {
		return st.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Server is starting...")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Received shutdown signal")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Server stopped gracefully")
}
