package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradesync/api"
	"tradesync/cache"
	"tradesync/config"
	"tradesync/crypto"
	"tradesync/exchange"
	"tradesync/logger"
	"tradesync/store"
	"tradesync/syncer"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		logger.Info("📄 Loaded .env")
	}

	if err := logger.Init(&logger.Config{Level: os.Getenv("LOG_LEVEL")}); err != nil {
		logger.Fatalf("failed to initialize logger: %v", err)
	}
	config.Init()
	cfg := config.Get()

	st, err := store.NewFromEnv()
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	// Credential encryption at rest; without a key credentials are stored as-is
	if cryptoService, err := crypto.NewService(); err != nil {
		logger.Warnf("⚠️  Credential encryption disabled: %v", err)
	} else {
		st.SetCryptoFuncs(cryptoService.Encrypt, cryptoService.Decrypt)
		logger.Info("🔐 Credential encryption enabled")
	}

	readCache := cache.New()
	defer readCache.Close()

	fetcher := syncer.NewFetcher()
	fetcher.PageDelay = time.Duration(cfg.SyncPageDelayMs) * time.Millisecond
	service := syncer.NewService(st, readCache, clientFactory(st), &syncer.ServiceConfig{
		MaxChunkDays: cfg.SyncMaxChunkDays,
		Fetcher:      fetcher,
	})
	tracker := syncer.NewTracker()
	coordinator := syncer.NewCoordinator(service, tracker)

	server := api.NewServer(st, service, coordinator, cfg.APIServerPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatalf("server error: %v", err)
	}
	logger.Info("👋 Shutdown complete")
}

// clientFactory resolves an owner's stored credentials into an authenticated
// exchange client. Missing credentials surface as a bad request before any
// remote call is attempted.
func clientFactory(st *store.Store) syncer.ClientFactory {
	return func(owner, exchangeName string) (exchange.Client, error) {
		if !exchange.Supported(exchangeName) {
			return nil, syncer.NewBadRequest("unsupported exchange: %s", exchangeName)
		}

		acct, err := st.Exchange().Get(owner, exchangeName)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, syncer.NewBadRequest("no credentials configured for %s", exchangeName)
			}
			return nil, err
		}
		if acct.APIKey == "" || acct.SecretKey == "" {
			return nil, syncer.NewBadRequest("incomplete credentials for %s", exchangeName)
		}

		return exchange.New(exchangeName, acct.APIKey, acct.SecretKey)
	}
}
