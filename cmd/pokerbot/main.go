package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/felipefinhane/poker-ranking/internal/api"
	"github.com/felipefinhane/poker-ranking/internal/bot"
	"github.com/felipefinhane/poker-ranking/internal/commit"
	"github.com/felipefinhane/poker-ranking/internal/config"
	"github.com/felipefinhane/poker-ranking/internal/db"
	"github.com/felipefinhane/poker-ranking/internal/guard"
	"github.com/felipefinhane/poker-ranking/internal/logging"
	"github.com/felipefinhane/poker-ranking/internal/metrics"
	"github.com/felipefinhane/poker-ranking/internal/session"
	"github.com/felipefinhane/poker-ranking/internal/wizard"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(ctx); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	store, closeStore, err := openSessionStore(ctx, cfg, database)
	if err != nil {
		logger.Fatal("Failed to open session store", zap.Error(err), zap.String("backend", cfg.SessionBackend))
	}
	defer closeStore()
	logger.Info("Session store ready", zap.String("backend", cfg.SessionBackend))

	m := metrics.New(nil)

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatal("Failed to create discord session", zap.Error(err))
	}

	authz := guard.New(
		bot.NewRoleChecker(dg),
		guard.AnyAllowList{guard.NewStaticAllowList(cfg.AllowList()), database},
		database,
	)

	order, err := wizard.ParseOrder(cfg.PositionOrder)
	if err != nil {
		logger.Fatal("Invalid position order", zap.Error(err))
	}

	engineOpts := []wizard.Option{
		wizard.WithOrder(order),
		wizard.WithRequireFullAllocation(cfg.RequireFullAllocation),
		wizard.WithRecorder(m),
	}
	if base := cfg.PublicFrontendURL; base != "" {
		engineOpts = append(engineOpts, wizard.WithMatchURL(func(id string) string {
			return base + "/matches/" + id
		}))
	}

	committer := commit.New(database, store, logger, commit.WithRecorder(m))
	engine := wizard.New(store, database, authz, committer, logger, engineOpts...)

	// Initialize Discord bot
	discordBot := bot.New(dg, engine, authz, database, cfg.PublicFrontendURL, logger)

	// Initialize API server
	apiServer := api.New(cfg, database, authz, logger, api.WithMetrics(m))

	// Start Discord bot
	if err := discordBot.Start(); err != nil {
		logger.Fatal("Failed to start discord bot", zap.Error(err))
	}
	defer discordBot.Stop()

	// Start API server
	go func() {
		if err := apiServer.Start(ctx); err != nil {
			logger.Error("API server error", zap.Error(err))
			stop()
		}
	}()

	// Wait for signal to stop
	<-ctx.Done()

	logger.Info("Shutting down...")
}

func openSessionStore(ctx context.Context, cfg *config.Config, database *db.DB) (wizard.Store, func(), error) {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		r, err := session.NewRedisFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	case config.BackendMemory:
		return session.NewMemory(), func() {}, nil
	default:
		return session.NewPostgres(database.Pool()), func() {}, nil
	}
}
