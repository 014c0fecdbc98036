package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pantrylens/backend/config"
	httpDelivery "github.com/pantrylens/backend/internal/delivery/http"
	"github.com/pantrylens/backend/internal/domain"
	"github.com/pantrylens/backend/internal/infrastructure/cache"
	"github.com/pantrylens/backend/internal/infrastructure/grocy"
	"github.com/pantrylens/backend/internal/infrastructure/marktguru"
	"github.com/pantrylens/backend/internal/infrastructure/modelstore"
	"github.com/pantrylens/backend/internal/infrastructure/openfoodfacts"
	"github.com/pantrylens/backend/internal/infrastructure/productdb"
	"github.com/pantrylens/backend/internal/scheduler"
	"github.com/pantrylens/backend/internal/usecase/forecast"
	"github.com/pantrylens/backend/internal/usecase/ingredient"
	"github.com/pantrylens/backend/internal/usecase/offers"
	"github.com/pantrylens/backend/internal/usecase/planner"
	"github.com/pantrylens/backend/internal/usecase/productdata"
	"github.com/pantrylens/backend/internal/usecase/quantity"
	"github.com/pantrylens/backend/internal/usecase/reconcile"
	"github.com/pantrylens/backend/internal/usecase/search"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting PantryLens backend",
		zap.String("version", "1.0.0"),
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("grocy", cfg.Grocy.BaseURL),
		zap.String("storage", cfg.Storage.Driver))

	catalog := grocy.NewClient(cfg.Grocy.BaseURL, cfg.Grocy.APIKey, cfg.Grocy.RateLimit, logger)
	parser := quantity.NewParser(logger)
	index := search.NewCatalogIndex(catalog, parser, logger)

	// Product facts: the local dump first, then OpenFoodFacts, cached per key
	memoryCache := cache.NewMemoryCache(0)
	defer memoryCache.Close()

	facts := productdata.NewComposite(logger)
	if cfg.ProductsDB.Path != "" {
		dump, err := productdb.Open(cfg.ProductsDB.Path, parser, logger)
		if err != nil {
			return fmt.Errorf("open product dump: %w", err)
		}
		defer dump.Close()
		facts.Add(dump)
	}
	off := openfoodfacts.NewSource(
		openfoodfacts.NewClient(cfg.OpenFoodFacts.BaseURL, cfg.OpenFoodFacts.RateLimit, logger),
		parser, logger)
	facts.Add(off)
	var factSource domain.ProductDataSource = productdata.NewCached(facts, memoryCache, cfg.Cache.TTL, logger)

	precedence, err := reconcile.ParsePrecedence(cfg.Planner.QuantityPrecedence)
	if err != nil {
		return err
	}
	reconciler := reconcile.NewBarcodeReconciler(catalog, factSource, index, precedence, cfg.Planner.Concurrency, logger)

	ingredients := ingredient.NewMatcher(index, catalog, parser, cfg.Planner.Concurrency, logger)

	if cfg.MarktGuru.APIKey == "" {
		logger.Warn("marktguru API key not configured, offer requests will fail")
	}
	offerSource := marktguru.NewSource(marktguru.NewClient(marktguru.Options{
		BaseURL:   cfg.MarktGuru.BaseURL,
		APIKey:    cfg.MarktGuru.APIKey,
		ClientKey: cfg.MarktGuru.ClientKey,
		ZipCode:   cfg.MarktGuru.ZipCode,
		RateLimit: cfg.MarktGuru.RateLimit,
	}, logger), cfg.MarktGuru.MaxAge, logger)
	offerService := offers.NewService(offers.NewComposite(offerSource), catalog, index, cfg.Planner.Concurrency, logger)

	store, err := modelstore.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN, logger)
	if err != nil {
		return fmt.Errorf("open model store: %w", err)
	}
	defer store.Close()
	forecaster := forecast.NewForecaster(catalog, store, cfg.Forecast.Workers, logger)

	shopping := planner.NewPlanner(catalog, forecaster, planner.Config{
		MaxStockDays: cfg.Planner.MaxStockDays,
		TargetListID: cfg.Planner.TargetListID,
		Concurrency:  cfg.Planner.Concurrency,
	}, logger)

	// Warm the indexes so the API answers before the first scheduled run
	if err := index.RunOnce(ctx); err != nil {
		logger.Warn("initial catalog index build failed", zap.Error(err))
	}

	workers := []*scheduler.Worker{
		scheduler.NewWorker(index, cfg.Index.Period, logger),
		scheduler.NewWorker(reconciler, cfg.Forecast.Period, logger),
		scheduler.NewWorker(shoppingPipeline(cfg, index, forecaster, offerService, shopping), cfg.Planner.Period, logger),
	}
	for _, w := range workers {
		w.Start(ctx)
	}
	defer func() {
		for _, w := range workers {
			w.Stop()
		}
	}()

	handler := httpDelivery.NewHandler(httpDelivery.Dependencies{
		Offers:       offerService,
		ShoppingList: shopping,
		Forecast:     forecaster,
		ProductData:  factSource,
		Quantity:     parser,
		Ingredients:  ingredients,
		Reconciler:   reconciler,
		Logger:       logger,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           httpDelivery.SetupRouter(cfg, handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// shoppingPipeline rebuilds the indexes, retrains the forecasts, records
// current offers, regenerates the shopping list and annotates it
func shoppingPipeline(cfg *config.Config, index *search.CatalogIndex, forecaster *forecast.Forecaster,
	offerService *offers.Service, shopping *planner.Planner) scheduler.Job {
	return scheduler.NewPipeline("shopping-list-pipeline",
		index,
		forecaster,
		scheduler.JobFunc{JobName: "offer-update", Run: func(ctx context.Context) error {
			_, err := offerService.UpdateOffers(ctx, cfg.Planner.StoresToVisit, time.Now())
			return err
		}},
		shopping,
		scheduler.JobFunc{JobName: "shopping-list-notes", Run: func(ctx context.Context) error {
			_, err := shopping.UpdateNotes(ctx)
			return err
		}},
	)
}
