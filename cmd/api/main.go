package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"daemon/internal/admin"
	"daemon/internal/copytrade"
	"daemon/internal/custody"
	"daemon/internal/exchange"
	"daemon/internal/executor"
	"daemon/internal/handlers"
	"daemon/internal/oracle"
	"daemon/internal/routes"
	"daemon/internal/scheduler"
	"daemon/internal/storage"
	"daemon/internal/trading"
	"daemon/pkg/config"
	"daemon/pkg/solana"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	config.InitDB()
	config.ExecuteMigrations()
	store := storage.NewPostgresStore(config.DB)

	keys, err := custody.NewStore(os.Getenv("CUSTODY_MASTER_KEY"), store)
	if err != nil {
		log.Fatal(err)
	}

	var notifier scheduler.Notifier
	if os.Getenv("RABBITMQ_HOST") != "" {
		config.InitRabbitMQ()
		defer config.RabbitMQ.Close()

		publisher, err := config.NewPublisher()
		if err != nil {
			log.Fatal("create publisher: ", err)
		}
		defer publisher.Close()
		notifier = publisher
	} else {
		log.Warn("RabbitMQ not configured, lead trade events will not be published")
	}

	ledger := solana.NewClient(envOr("RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"))
	balances := oracle.New(ledger, oracle.Config{})

	adapters := map[trading.ExchangeKind]exchange.Adapter{
		trading.ExchangePool:  exchange.NewPoolAdapter(envOr("POOL_API_URL", "https://quote-api.jup.ag/v6")),
		trading.ExchangeCurve: exchange.NewCurveAdapter(envOr("CURVE_API_URL", "https://pumpportal.fun/api")),
	}

	settings := admin.NewSettings(store)
	swapper := executor.New(adapters, ledger, balances, settings, keys, executor.Backoff{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := scheduler.New(ctx, store, balances, swapper, settings, notifier)
	if err := sessions.Recover(ctx); err != nil {
		log.Fatal("recover sessions: ", err)
	}
	defer sessions.Shutdown()

	propagator := copytrade.NewPropagator(store, swapper, balances)

	handlers.Init(&handlers.Services{
		Store:     store,
		Custody:   keys,
		Balances:  balances,
		Sessions:  sessions,
		Following: propagator,
		Settings:  settings,
	})

	r := routes.SetupRouter()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
		sessions.Shutdown()
		os.Exit(0)
	}()

	if err := r.Run(":" + envOr("PORT", "8080")); err != nil {
		log.Fatal("start server: ", err)
	}
}
