// Package reconcile brings catalog barcode records in line with the facts
// reported by external product data sources.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pantrylens/backend/internal/domain"
)

// Precedence decides which quantity estimate wins when both exist
type Precedence string

const (
	// PrecedenceBarcode prefers the amount declared on the barcode record
	PrecedenceBarcode Precedence = "barcode"
	// PrecedenceExternal prefers the amount reported by product data sources
	PrecedenceExternal Precedence = "external"
)

// ParsePrecedence validates a configured precedence value
func ParsePrecedence(s string) (Precedence, error) {
	switch p := Precedence(s); p {
	case PrecedenceBarcode, PrecedenceExternal:
		return p, nil
	case "":
		return PrecedenceBarcode, nil
	}
	return "", fmt.Errorf("%w: unknown quantity precedence %q", domain.ErrInvalidRequest, s)
}

// Catalog is the part of the catalog service the reconciler needs
type Catalog interface {
	GetProducts(ctx context.Context) ([]domain.Product, error)
	GetStockConversions(ctx context.Context) (map[int]map[int]float64, error)
	GetBarcodes(ctx context.Context, productID int) ([]domain.Barcode, error)
	UpdateBarcode(ctx context.Context, barcode domain.Barcode) error
}

// UnitIndex maps a unit name reported by a source onto a catalog unit
type UnitIndex interface {
	QueryUnit(text string) (domain.Unit, bool)
}

// Result counts what a reconciliation run did
type Result struct {
	Products  int `json:"products"`
	Barcodes  int `json:"barcodes"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

func (r *Result) add(o Result) {
	r.Products += o.Products
	r.Barcodes += o.Barcodes
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
	r.Failed += o.Failed
}

// BarcodeReconciler backfills barcode notes and package amounts
type BarcodeReconciler struct {
	catalog     Catalog
	source      domain.ProductDataSource
	units       UnitIndex
	precedence  Precedence
	concurrency int
	logger      *zap.Logger
}

// NewBarcodeReconciler creates a reconciler
func NewBarcodeReconciler(catalog Catalog, source domain.ProductDataSource, units UnitIndex, precedence Precedence, concurrency int, logger *zap.Logger) *BarcodeReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if precedence == "" {
		precedence = PrecedenceBarcode
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &BarcodeReconciler{
		catalog:     catalog,
		source:      source,
		units:       units,
		precedence:  precedence,
		concurrency: concurrency,
		logger:      logger.Named("reconcile"),
	}
}

// Name identifies the job
func (r *BarcodeReconciler) Name() string { return "barcode-reconcile" }

// RunOnce reconciles every catalog product
func (r *BarcodeReconciler) RunOnce(ctx context.Context) error {
	_, err := r.ReconcileAll(ctx)
	return err
}

// ReconcileAll reconciles the barcodes of every catalog product. Source
// faults fail only the affected barcode; catalog errors abort the run.
func (r *BarcodeReconciler) ReconcileAll(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	logger := r.logger.With(zap.String("run_id", runID))
	start := time.Now()

	products, err := r.catalog.GetProducts(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list products: %w", err)
	}
	conversions, err := r.catalog.GetStockConversions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load conversions: %w", err)
	}

	var (
		mu    sync.Mutex
		total Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, product := range products {
		g.Go(func() error {
			res, err := r.reconcileProduct(gctx, logger, product, conversions[product.ID])
			mu.Lock()
			total.add(res)
			mu.Unlock()
			return err
		})
	}
	err = g.Wait()

	logger.Info("barcode reconciliation finished",
		zap.Int("products", total.Products),
		zap.Int("barcodes", total.Barcodes),
		zap.Int("updated", total.Updated),
		zap.Int("unchanged", total.Unchanged),
		zap.Int("failed", total.Failed),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return total, err
}

// ReconcileProduct reconciles the barcodes of one product
func (r *BarcodeReconciler) ReconcileProduct(ctx context.Context, product domain.Product) (Result, error) {
	conversions, err := r.catalog.GetStockConversions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load conversions: %w", err)
	}
	return r.reconcileProduct(ctx, r.logger, product, conversions[product.ID])
}

func (r *BarcodeReconciler) reconcileProduct(ctx context.Context, logger *zap.Logger, product domain.Product, conversions map[int]float64) (Result, error) {
	res := Result{Products: 1}
	barcodes, err := r.catalog.GetBarcodes(ctx, product.ID)
	if err != nil {
		return res, fmt.Errorf("barcodes of product %d: %w", product.ID, err)
	}

	for _, barcode := range barcodes {
		res.Barcodes++
		data, err := r.source.GetData(ctx, domain.BarcodeKey(barcode.Barcode))
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if !errors.Is(err, domain.ErrSourceFault) {
				err = &domain.SourceError{Source: r.source.Info().Name, Key: domain.BarcodeKey(barcode.Barcode), Err: err}
			}
			res.Failed++
			logger.Error("product data source fault, barcode skipped",
				zap.Int("product_id", product.ID),
				zap.String("barcode", barcode.Barcode),
				zap.Error(err))
			continue
		}

		updated, changed := r.reconcileBarcode(logger, product, barcode, data, conversions)
		if !changed {
			res.Unchanged++
			continue
		}
		if err := r.catalog.UpdateBarcode(ctx, updated); err != nil {
			return res, fmt.Errorf("update barcode %s: %w", barcode.Barcode, err)
		}
		res.Updated++
		logger.Info("barcode updated",
			zap.Int("product_id", product.ID),
			zap.String("barcode", updated.Barcode),
			zap.String("note", updated.Note),
			zap.Float64p("amount", updated.Amount))
	}
	return res, nil
}

// reconcileBarcode returns the corrected barcode record and whether
// anything differs from the stored one
func (r *BarcodeReconciler) reconcileBarcode(logger *zap.Logger, product domain.Product, barcode domain.Barcode, data domain.ProductData, conversions map[int]float64) (domain.Barcode, bool) {
	changed := false
	out := barcode

	if out.Note == "" {
		if name, ok := domain.First(data.Name); ok {
			out.Note = name
			changed = true
		}
	}

	declared := r.declaredAmount(logger, product, barcode, conversions)
	external := r.externalAmount(logger, product, data, conversions)
	if declared != nil && external != nil && *declared != *external {
		logger.Warn("barcode quantity differs from product data quantity",
			zap.String("barcode", barcode.Barcode),
			zap.Float64("barcode_quantity", *declared),
			zap.Float64("product_data_quantity", *external))
	}

	first, second := declared, external
	if r.precedence == PrecedenceExternal {
		first, second = external, declared
	}
	if first == nil {
		first = second
	}
	if first != nil && (out.Amount == nil || *out.Amount != *first) {
		out.Amount = ptr(*first)
		changed = true
	}

	if out.UnitID == nil || *out.UnitID != product.StockUnitID {
		out.UnitID = ptr(product.StockUnitID)
		changed = true
	}
	return out, changed
}

// declaredAmount converts the barcode's own amount into the stock unit.
// A unit without a conversion makes the amount unknown.
func (r *BarcodeReconciler) declaredAmount(logger *zap.Logger, product domain.Product, barcode domain.Barcode, conversions map[int]float64) *float64 {
	if barcode.UnitID == nil || barcode.Amount == nil {
		return nil
	}
	factor, ok := stockFactor(product, conversions, *barcode.UnitID)
	if !ok {
		logger.Warn("barcode unit has no conversion rule",
			zap.String("barcode", barcode.Barcode),
			zap.Int("unit_id", *barcode.UnitID))
		return nil
	}
	return ptr(scale(*barcode.Amount, factor))
}

// externalAmount converts the preferred source quantity into the stock unit
func (r *BarcodeReconciler) externalAmount(logger *zap.Logger, product domain.Product, data domain.ProductData, conversions map[int]float64) *float64 {
	unitName, ok := domain.First(data.Unit)
	if !ok {
		return nil
	}
	amount, ok := domain.First(data.QuantityAmount)
	if !ok {
		return nil
	}
	key := data.Unit[0].ProductKey
	if r.units == nil {
		return nil
	}
	unit, ok := r.units.QueryUnit(unitName)
	if !ok {
		logger.Warn("product data unit not found in catalog units",
			zap.String("unit", unitName),
			zap.Stringer("key", key))
		return nil
	}
	factor, ok := stockFactor(product, conversions, unit.ID)
	if !ok {
		logger.Warn("product data unit has no conversion rule",
			zap.String("unit", unit.Name),
			zap.Stringer("key", key))
		return nil
	}
	return ptr(scale(amount, factor))
}

func stockFactor(product domain.Product, conversions map[int]float64, unitID int) (float64, bool) {
	if factor, ok := conversions[unitID]; ok {
		return factor, true
	}
	if unitID == product.StockUnitID {
		return 1, true
	}
	return 0, false
}

// scale multiplies in decimal and rounds to 7 digits
func scale(amount, factor float64) float64 {
	v, _ := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(factor)).Round(7).Float64()
	return v
}

func ptr[T any](v T) *T { return &v }
