package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/api"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/config"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/drops"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/eventbus"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/ingester"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/metrics"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/prices"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/repository"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/torii"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

const (
	pollInterval      = 10 * time.Second
	avnuInterval      = 30 * time.Second
	ekuboInterval     = 30 * time.Second
	recorderInterval  = 60 * time.Second
	decimalsInterval  = time.Hour
	notificationQueue = 256
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Config
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("PonziLand indexer starting (commit %s)", BuildCommit)
	log.Printf("Torii: %s", cfg.Torii.ToriiURL)
	log.Printf("API Port: %d", cfg.Port)

	// 2. Database
	repo, err := repository.NewRepository(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer repo.Close()

	if os.Getenv("SKIP_MIGRATION") == "true" {
		log.Println("migration skipped (SKIP_MIGRATION=true)")
	} else {
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Println("migrations applied")
	}

	// 3. Upstream + prices
	toriiClient := torii.NewClient(cfg.Torii.ToriiURL, cfg.Torii.WorldAddress)

	reference := cfg.TokenBySymbol("ETH")
	if reference == nil {
		if len(cfg.Tokens) == 0 {
			log.Fatalf("config: at least one [[token]] is required")
		}
		reference = &cfg.Tokens[0]
	}

	avnuStore := prices.NewStore()
	ekuboStore := prices.NewStore()
	avnuUpdater := prices.NewAvnuUpdater(cfg.Avnu.APIURL, *reference, cfg.Tokens, avnuStore)
	ekuboUpdater := prices.NewEkuboUpdater(cfg.Ekubo.APIURL, cfg.Ekubo.ChainID, *reference, cfg.Tokens, ekuboStore)

	decimalsCache := prices.NewDecimalsCache(cfg.Tokens)
	oracle := prices.NewOracle(avnuStore, ekuboStore, decimalsCache, cfg.Tokens)
	recorder := prices.NewRecorder(oracle, repo, cfg.Tokens)

	// 4. Workers
	bus := eventbus.New()
	supervisor := ingester.NewSupervisor(
		ingester.NewEventIngester(toriiClient, repo, bus, pollInterval),
		ingester.NewModelIngester(toriiClient, repo, pollInterval),
		ingester.NewPnlDeriver(repo, bus.Subscribe(notificationQueue), pollInterval, cfg.DefaultToken),
		ingester.NewHistoryDeriver(repo, oracle, bus.Subscribe(notificationQueue), pollInterval, cfg.DefaultToken),
		ingester.NewWalletActivityDeriver(repo, bus.Subscribe(notificationQueue), pollInterval),
		ingester.NewPeriodic("avnu_prices", avnuInterval, countRefreshes("avnu", avnuUpdater.Refresh)),
		ingester.NewPeriodic("ekubo_prices", ekuboInterval, countRefreshes("ekubo", ekuboUpdater.Refresh)),
		ingester.NewPeriodic("price_recorder", recorderInterval, recorder.Record),
	)
	if cfg.Starknet.RPCURL != "" {
		refresher := prices.NewDecimalsRefresher(cfg.Starknet.RPCURL, cfg.Tokens, decimalsCache)
		supervisor.Add(ingester.NewPeriodic("decimals_refresher", decimalsInterval, refresher.Refresh))
	} else {
		log.Println("starknet.rpc_url not set, token decimals stay at configured values")
	}
	supervisor.Start(ctx)

	// 5. HTTP API
	dropEngine := drops.NewEngine(repo, cfg.DropEmitterWallets, 0)
	server := api.NewServer(repo, oracle, dropEngine, cfg.CORSOrigins)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(fmt.Sprintf("%s:%d", cfg.Address, cfg.Port))
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Printf("http server: %v", err)
		}
	}

	// 6. Graceful shutdown: workers first so no writes race the pool close.
	supervisor.Stop()
	bus.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	log.Println("bye")
}

// countRefreshes wraps a price refresh with the per-source outcome counter.
func countRefreshes(source string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		err := fn(ctx)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.PriceRefreshes.WithLabelValues(source, outcome).Inc()
		return err
	}
}
