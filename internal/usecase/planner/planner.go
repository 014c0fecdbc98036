package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pantrylens/backend/internal/domain"
)

// Catalog is the part of the catalog service the planner reads and writes
type Catalog interface {
	GetProducts(ctx context.Context) ([]domain.Product, error)
	GetProductDetails(ctx context.Context, productID int) (*domain.ProductDetails, error)
	GetProductUserFields(ctx context.Context, productID int) (domain.ProductUserFields, error)
	GetShoppingList(ctx context.Context) ([]domain.ShoppingListItem, error)
	ClearShoppingList(ctx context.Context, listID int) error
	AddToShoppingList(ctx context.Context, item domain.ShoppingListItem) (int, error)
	UpdateShoppingListItem(ctx context.Context, item domain.ShoppingListItem) error
	MarkShoppingListItemGenerated(ctx context.Context, itemID int) error
}

// Forecaster projects consumption between today and end
type Forecaster interface {
	Forecast(ctx context.Context, productID int, end time.Time) (float64, error)
}

// Config tunes the planner
type Config struct {
	MaxStockDays float64
	TargetListID int
	Concurrency  int
}

// Result counts the outcome of a shopping list run
type Result struct {
	Products int `json:"products"`
	Added    int `json:"added"`
	Skipped  int `json:"skipped"`
	NoAction int `json:"noAction"`
	Failed   int `json:"failed"`
}

// Planner regenerates the system-generated part of the shopping list
type Planner struct {
	catalog    Catalog
	forecaster Forecaster
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// NewPlanner creates a planner
func NewPlanner(catalog Catalog, forecaster Forecaster, cfg Config, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxStockDays <= 0 {
		cfg.MaxStockDays = 180
	}
	if cfg.TargetListID <= 0 {
		cfg.TargetListID = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Planner{
		catalog:    catalog,
		forecaster: forecaster,
		cfg:        cfg,
		logger:     logger.Named("planner"),
		now:        time.Now,
	}
}

func (p *Planner) Name() string { return "shopping-list" }

func (p *Planner) RunOnce(ctx context.Context) error {
	_, err := p.Generate(ctx)
	return err
}

type outcome int

const (
	outcomeAdded outcome = iota
	outcomeSkipped
	outcomeNoAction
	outcomeFailed
)

// Generate clears the target list and adds a generated entry for every
// product whose forecast exceeds its stock
func (p *Planner) Generate(ctx context.Context) (Result, error) {
	logger := p.logger.With(zap.String("run_id", uuid.NewString()))
	logger.Info("create offer shopping list")
	start := time.Now()

	var products []domain.Product
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = p.catalog.GetProducts(gctx)
		return err
	})
	g.Go(func() error {
		return p.catalog.ClearShoppingList(gctx, p.cfg.TargetListID)
	})
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("prepare shopping list: %w", err)
	}

	items, err := p.catalog.GetShoppingList(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read shopping list: %w", err)
	}
	listed := make(map[int]bool, len(items))
	for _, item := range items {
		listed[item.ProductID] = true
	}

	var (
		mu     sync.Mutex
		result = Result{Products: len(products)}
	)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, product := range products {
		g.Go(func() error {
			res, err := p.collect(gctx, logger, product, listed[product.ID])
			if err != nil {
				return fmt.Errorf("product %d: %w", product.ID, err)
			}
			mu.Lock()
			defer mu.Unlock()
			switch res {
			case outcomeAdded:
				result.Added++
			case outcomeSkipped:
				result.Skipped++
			case outcomeNoAction:
				result.NoAction++
			case outcomeFailed:
				result.Failed++
			}
			return nil
		})
	}
	err = g.Wait()

	logger.Info("created shopping list",
		zap.Int("products", result.Products),
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped),
		zap.Int("no_action", result.NoAction),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return result, err
}

func (p *Planner) collect(ctx context.Context, logger *zap.Logger, product domain.Product, listed bool) (outcome, error) {
	if listed || product.UserFields.DontPurchase {
		return outcomeSkipped, nil
	}
	details, err := p.catalog.GetProductDetails(ctx, product.ID)
	if err != nil {
		return outcomeFailed, err
	}
	if details.AverageShelfLifeDays != nil && *details.AverageShelfLifeDays == 0 {
		logger.Warn("product has average shelf life of 0",
			zap.Int("product_id", details.ID),
			zap.String("product", details.Name))
		return outcomeSkipped, nil
	}

	var savings *float64
	if conv, ok := details.Conversion(details.PriceUnit.ID); ok {
		savings = Savings(product.UserFields.OfferPrice, details.AveragePrice, conv.Factor)
	}
	baseline := BaselineStockDays(details.AverageShelfLifeDays, p.cfg.MaxStockDays)
	days := StockDays(baseline, p.cfg.MaxStockDays, savings)

	now := p.now()
	y, m, d := now.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, int(days))
	forecast, err := p.forecaster.Forecast(ctx, product.ID, end)
	switch {
	case errors.Is(err, domain.ErrModelNotFound):
		logger.Debug("no consumption model", zap.Int("product_id", product.ID))
		return outcomeNoAction, nil
	case err != nil:
		logger.Warn("forecast fault", zap.Int("product_id", product.ID), zap.Error(err))
		return outcomeFailed, nil
	}

	in := Input{
		ProductID:    product.ID,
		StockAmount:  details.StockAmount,
		MinUnitSize:  details.MinUnitSize,
		Forecast:     forecast,
		PurchaseUnit: details.PurchaseUnit,
	}
	if conv, ok := details.Conversion(details.PurchaseUnit.ID); ok {
		in.PurchaseFactor = conv.Factor
	}
	decision, ok := Decide(in)
	if !ok {
		return outcomeNoAction, nil
	}

	itemID, err := p.catalog.AddToShoppingList(ctx, domain.ShoppingListItem{
		ProductID:      product.ID,
		ShoppingListID: p.cfg.TargetListID,
		Amount:         forecast - details.StockAmount,
		UnitID:         product.PurchaseUnitID,
	})
	if err != nil {
		return outcomeFailed, err
	}
	if err := p.catalog.MarkShoppingListItemGenerated(ctx, itemID); err != nil {
		return outcomeFailed, err
	}
	logger.Debug("purchase decision",
		zap.Int("product_id", decision.ProductID),
		zap.Float64("amount", decision.AmountToBuy),
		zap.String("unit", decision.Unit.Name),
		zap.Float64("stock_days", days))
	return outcomeAdded, nil
}
