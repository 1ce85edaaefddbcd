package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"daemon/internal/admin"
	"daemon/internal/copytrade"
	"daemon/internal/custody"
	"daemon/internal/exchange"
	"daemon/internal/executor"
	"daemon/internal/oracle"
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
	store := storage.NewPostgresStore(config.DB)

	keys, err := custody.NewStore(os.Getenv("CUSTODY_MASTER_KEY"), store)
	if err != nil {
		log.Fatal(err)
	}

	config.InitRabbitMQ()
	defer config.RabbitMQ.Close()

	ledger := solana.NewClient(envOr("RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"))
	balances := oracle.New(ledger, oracle.Config{})

	poolAdapter := exchange.NewPoolAdapter(envOr("POOL_API_URL", "https://quote-api.jup.ag/v6"))
	adapters := map[trading.ExchangeKind]exchange.Adapter{
		trading.ExchangePool:  poolAdapter,
		trading.ExchangeCurve: exchange.NewCurveAdapter(envOr("CURVE_API_URL", "https://pumpportal.fun/api")),
	}

	settings := admin.NewSettings(store)
	swapper := executor.New(adapters, ledger, balances, settings, keys, executor.Backoff{})
	propagator := copytrade.NewPropagator(store, swapper, balances)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prices := exchange.NewPriceSource(poolAdapter, 10*time.Second)
	if endpoint := os.Getenv("PRICE_WS_ENDPOINT"); endpoint != "" {
		stream := exchange.NewPriceStream(endpoint, prices)
		go stream.Run(ctx)
		defer stream.Stop()
	}

	monitor := copytrade.NewMonitor(store, prices, swapper, balances, propagator)
	if err := monitor.Start(ctx); err != nil {
		log.Fatal("start position monitor: ", err)
	}
	defer monitor.Stop()

	consumer, err := config.NewConsumer(trading.QueueLeadTrades)
	if err != nil {
		log.Fatal("create consumer: ", err)
	}
	defer consumer.Close()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
		consumer.Close()
	}()

	log.Info("copy-trade worker started")

	err = consumer.Consume(func(msg []byte) error {
		var ev trading.LeadTradeEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			log.Errorf("unmarshal lead trade event: %v", err)
			// malformed messages are not retryable
			return nil
		}

		results := propagator.OnLeadTrade(ctx, ev)
		for _, res := range results {
			if res.Err != nil {
				log.WithFields(log.Fields{
					"lead":     ev.LeadAddress,
					"follower": res.FollowerAddress,
				}).Errorf("copy trade failed: %v", res.Err)
			} else {
				log.WithFields(log.Fields{
					"lead":      ev.LeadAddress,
					"follower":  res.FollowerAddress,
					"signature": res.Signature,
				}).Info("copied lead trade")
			}
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Fatal("consumer stopped: ", err)
	}
}
