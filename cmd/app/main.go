package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wtcoin/internal/config"
	"wtcoin/internal/db"
	"wtcoin/internal/deposit"
	"wtcoin/internal/events"
	"wtcoin/internal/fee"
	"wtcoin/internal/ledger"
	"wtcoin/internal/logger"
	"wtcoin/internal/notify"
	"wtcoin/internal/provider"
	"wtcoin/internal/server"
	"wtcoin/internal/user"
	"wtcoin/internal/wallet"
	"wtcoin/internal/webhook"
	"wtcoin/internal/withdrawal"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// @title WTCoin API
// @version 1.0
// @description Custodial multi-coin wallet backend.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLevel(cfg.LogLevel)
	defer logger.Sync()
	logger.Info("Starting WTCoin application")

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	fees := fee.NewEngine(fee.Policy{
		StandardRate:     cfg.Fees.StandardRate,
		PenaltyRate:      cfg.Fees.PenaltyRate,
		VolumeMultiplier: cfg.Fees.VolumeMultiplier,
	})
	l := ledger.New(db.NewTxRunner(database), wallet.NewRepository(), ledger.NewRepository(), fees).
		WithEvents(events.NewRedisSink(rdb))

	userRepo := user.NewRepository()
	users := user.NewService(database, userRepo)

	notifier := notify.New(rdb, users, notify.NewSMTPMailer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.User,
		cfg.SMTP.Pass,
		cfg.SMTP.From,
		cfg.SMTP.FromName,
	))
	defer notifier.Close()

	client := provider.New(cfg.Provider.BaseURL, cfg.Provider.AppID, cfg.Provider.AppSecret, cfg.Provider.Timeout)

	withdrawals := withdrawal.NewService(l, withdrawal.NewRepository(), client, notifier, withdrawal.Config{
		ProviderTimeout: cfg.Provider.Timeout,
		MassPrefix:      cfg.MassWithdrawalPrefix,
	})

	reconciler := webhook.NewReconciler(l, userRepo, withdrawals, notifier, webhook.Config{
		AppID:             cfg.Provider.AppID,
		Secret:            cfg.Provider.AppSecret,
		FreshnessWindow:   cfg.Webhook.FreshnessWindow,
		MassDepositPrefix: cfg.MassDepositPrefix,
		SelfBonusRate:     cfg.Bonus.SelfRate,
		ReferrerBonusRate: cfg.Bonus.ReferrerRate,
	})

	srv := server.New(cfg.Port, cfg.JWTSecret, database, server.Handlers{
		Ledger:     ledger.NewHandler(l),
		Withdrawal: withdrawal.NewHandler(withdrawals),
		Deposit:    deposit.NewHandler(deposit.NewService(database, deposit.NewRepository(), client)),
		Webhook:    webhook.NewHandler(reconciler),
		User:       user.NewHandler(users),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		notifier.Start(gctx)
		return nil
	})
	g.Go(func() error {
		notifier.MonitorQueue(gctx, 30*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("Server error: %v", err)
	}
	logger.Info("Server stopped")
}
