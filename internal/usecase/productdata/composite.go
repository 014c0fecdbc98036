// Package productdata merges provenance-tagged product facts from
// independent sources.
package productdata

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pantrylens/backend/internal/domain"
)

// Composite queries every registered source for the same key and joins the
// results in registration order. One failing source fails the whole lookup.
type Composite struct {
	sources []domain.ProductDataSource
	logger  *zap.Logger
}

// NewComposite creates a composite over sources, highest priority first
func NewComposite(logger *zap.Logger, sources ...domain.ProductDataSource) *Composite {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composite{sources: sources, logger: logger.Named("productdata")}
}

// Add registers a source with the lowest priority so far
func (c *Composite) Add(source domain.ProductDataSource) {
	c.sources = append(c.sources, source)
}

func (c *Composite) Info() domain.SourceInfo {
	return domain.SourceInfo{Name: "composite"}
}

// GetData fans out to all sources and folds their results with Join
func (c *Composite) GetData(ctx context.Context, key domain.ProductKey) (domain.ProductData, error) {
	start := time.Now()
	results := make([]domain.ProductData, len(c.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		g.Go(func() error {
			data, err := src.GetData(gctx, key)
			if err != nil {
				return wrapSourceError(src.Info().Name, key, err)
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Error("product data lookup failed",
			zap.Stringer("key", key),
			zap.Error(err))
		return domain.ProductData{}, err
	}

	var merged domain.ProductData
	for _, data := range results {
		merged = merged.Join(data)
	}

	c.logger.Debug("product data merged",
		zap.Stringer("key", key),
		zap.Int("sources", len(c.sources)),
		zap.Bool("empty", merged.IsEmpty()),
		zap.Duration("elapsed", time.Since(start)))
	return merged, nil
}

// wrapSourceError annotates err with the failing source and key unless a
// nested source already did
func wrapSourceError(source string, key domain.ProductKey, err error) error {
	var srcErr *domain.SourceError
	if errors.As(err, &srcErr) {
		return err
	}
	return &domain.SourceError{Source: source, Key: key, Err: err}
}
