package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"github.com/digkill/ReferralBot/internal/admin"
	"github.com/digkill/ReferralBot/internal/config"
	"github.com/digkill/ReferralBot/internal/database"
	"github.com/digkill/ReferralBot/internal/dedup"
	"github.com/digkill/ReferralBot/internal/repository"
	"github.com/digkill/ReferralBot/internal/service"
	"github.com/digkill/ReferralBot/internal/storage"
	"github.com/digkill/ReferralBot/internal/telegram"
	"github.com/digkill/ReferralBot/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		bootLog := logger.New(logger.Options{})
		bootLog.Fatal().Err(err).Msg("config")
	}

	logr := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logr.Fatal().Err(err).Msg("database connect")
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logr.Fatal().Err(err).Msg("database migrate")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logr.Fatal().Err(err).Msg("telegram bot")
	}
	logr.Info().Str("username", botAPI.Self.UserName).Msg("telegram authorized")

	userRepo := repository.NewUserRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	userService := service.NewUserService(service.UserServiceConfig{
		CodeLength:    cfg.Promo.CodeLength,
		CodeAttempts:  cfg.Promo.CodeAttempts,
		ReferralShare: cfg.Promo.ReferralShare.Decimal,
	}, userRepo, paymentRepo, logr)
	promoService := service.NewPromoService(userRepo, logr)
	adminService := service.NewAdminService(userRepo, logr)

	opts := telegram.Options{
		StartImagePath: cfg.StartImagePath,
		Menu:           cfg.Menu,
	}
	if cfg.S3Enabled() {
		uploader, err := storage.NewUploader(cfg.S3)
		if err != nil {
			logr.Fatal().Err(err).Msg("storage uploader")
		}
		opts.Archive = uploader
	}
	if cfg.DedupEnabled() {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		defer client.Close()
		filter := dedup.NewFilter(client, cfg.Redis.DedupTTL)
		if err := filter.Ping(ctx); err != nil {
			logr.Warn().Err(err).Msg("redis unavailable, updates will not be de-duplicated until it recovers")
		}
		opts.Filter = filter
	}

	sessions := telegram.NewStateManager()
	go sessions.RunSweeper(ctx, cfg.Session.SweepInterval, cfg.Session.IdleTTL, func(removed, remaining int) {
		logr.Info().Int("removed", removed).Int("remaining", remaining).Msg("idle sessions evicted")
	})

	bot := telegram.NewBot(opts, botAPI, logr, userService, promoService, adminService, sessions)

	httpServer := admin.NewServer(cfg.HTTP, logr, userService, adminService, bot)
	go func() {
		if err := httpServer.Run(ctx); err != nil {
			logr.Error().Err(err).Msg("http server stopped")
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error().Err(err).Msg("bot stopped")
	}
}
