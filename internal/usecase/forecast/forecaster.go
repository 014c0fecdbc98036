package forecast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pantrylens/backend/internal/domain"
)

// Catalog supplies the products and the consumption history to train on
type Catalog interface {
	domain.ConsumptionFeed
	GetProducts(ctx context.Context) ([]domain.Product, error)
}

// TrainResult counts the outcome of a training run
type TrainResult struct {
	Products int `json:"products"`
	Trained  int `json:"trained"`
	Failed   int `json:"failed"`
}

// Forecaster fits one model per product and answers consumption forecasts
// from the stored models
type Forecaster struct {
	catalog Catalog
	store   domain.ModelStore
	workers int
	logger  *zap.Logger
	now     func() time.Time
}

// NewForecaster creates a forecaster fitting on at most workers goroutines
func NewForecaster(catalog Catalog, store domain.ModelStore, workers int, logger *zap.Logger) *Forecaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 2
	}
	return &Forecaster{
		catalog: catalog,
		store:   store,
		workers: workers,
		logger:  logger.Named("forecast"),
		now:     time.Now,
	}
}

func (f *Forecaster) Name() string { return "forecast-train" }

func (f *Forecaster) RunOnce(ctx context.Context) error {
	_, err := f.Train(ctx)
	return err
}

// Train refits and stores the model of every catalog product. A product
// whose fit fails is logged and counted; store failures abort the run.
func (f *Forecaster) Train(ctx context.Context) (TrainResult, error) {
	logger := f.logger.With(zap.String("run_id", uuid.NewString()))
	logger.Info("create consumption models")
	start := time.Now()

	var (
		products []domain.Product
		events   []domain.ConsumptionEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = f.catalog.GetProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		events, err = f.catalog.GetConsumptionLog(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return TrainResult{}, fmt.Errorf("load training data: %w", err)
	}

	byProduct := make(map[int][]domain.ConsumptionEvent)
	for _, e := range events {
		byProduct[e.ProductID] = append(byProduct[e.ProductID], e)
	}

	now := f.now()
	var (
		mu     sync.Mutex
		result = TrainResult{Products: len(products)}
	)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for _, product := range products {
		g.Go(func() error {
			series := BuildSeries(byProduct[product.ID], product.ID, product.CreatedAt, now)
			model, err := Fit(series)
			if err == nil {
				var data []byte
				if data, err = model.Marshal(); err == nil {
					if err := f.store.Save(gctx, product.ID, data); err != nil {
						return fmt.Errorf("save model for product %d: %w", product.ID, err)
					}
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				logger.Warn("forecast fault", zap.Int("product_id", product.ID), zap.Error(err))
				return nil
			}
			result.Trained++
			return nil
		})
	}
	err := g.Wait()

	logger.Info("consumption models created",
		zap.Int("products", result.Products),
		zap.Int("trained", result.Trained),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return result, err
}

// Forecast returns the consumption expected between today and end
func (f *Forecaster) Forecast(ctx context.Context, productID int, end time.Time) (float64, error) {
	data, err := f.store.Load(ctx, productID)
	if err != nil {
		return 0, err
	}
	model, err := Unmarshal(data)
	if err != nil {
		return 0, err
	}
	return model.Predict(end) - model.Predict(f.now()), nil
}

// MemoryStore keeps models in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	models map[int][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{models: make(map[int][]byte)}
}

func (s *MemoryStore) Save(ctx context.Context, productID int, model []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[productID] = append([]byte(nil), model...)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, productID int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[productID]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", productID, domain.ErrModelNotFound)
	}
	return m, nil
}

