package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/pantrylens/backend/internal/domain"
)

// CatalogSource lists the records the catalog indexes are rebuilt from
type CatalogSource interface {
	GetProducts(ctx context.Context) ([]domain.Product, error)
	GetQuantityUnits(ctx context.Context) ([]domain.Unit, error)
}

// UnitNormalizer maps a bare unit string to its canonical unit name
type UnitNormalizer interface {
	ParseUnit(text string) (string, bool)
}

// CatalogIndex holds the product index and the quantity unit index
type CatalogIndex struct {
	source   CatalogSource
	units    UnitNormalizer
	products *Index
	unitIx   *Index
	logger   *zap.Logger
}

// NewCatalogIndex creates empty catalog indexes
func NewCatalogIndex(source CatalogSource, units UnitNormalizer, logger *zap.Logger) *CatalogIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogIndex{
		source: source,
		units:  units,
		products: NewIndex(
			Field{Name: "name_en", Analyzer: NewTextAnalyzer("en"), Fuzzy: true},
			Field{Name: "name_de", Analyzer: NewTextAnalyzer("de"), Fuzzy: true},
			Field{Name: "name_mk", Analyzer: NewTextAnalyzer("mk"), Fuzzy: true},
			Field{Name: "description", Analyzer: NewTextAnalyzer("en")},
		),
		unitIx: NewIndex(
			Field{Name: "name", Analyzer: KeywordAnalyzer{}},
			Field{Name: "name_plural", Analyzer: SimpleAnalyzer{}},
			Field{Name: "description", Analyzer: SimpleAnalyzer{}},
		),
		logger: logger.Named("index"),
	}
}

// QueryProduct returns the single best matching catalog product
func (c *CatalogIndex) QueryProduct(text string) (domain.Product, bool) {
	c.logger.Debug("querying product index", zap.String("text", text))
	hits := c.products.Search(text, 1)
	if len(hits) == 0 {
		return domain.Product{}, false
	}
	return hits[0].Stored.(domain.Product), true
}

// QueryUnit returns the single best matching quantity unit. When the text
// matches nothing it retries with the canonical unit name.
func (c *CatalogIndex) QueryUnit(text string) (domain.Unit, bool) {
	c.logger.Debug("querying unit index", zap.String("text", text))
	hits := c.unitIx.Search(text, 1)
	if len(hits) == 0 && c.units != nil {
		if canonical, ok := c.units.ParseUnit(text); ok {
			hits = c.unitIx.Search(canonical, 1)
		}
	}
	if len(hits) == 0 {
		return domain.Unit{}, false
	}
	return hits[0].Stored.(domain.Unit), true
}

// IndexProducts replaces the product index content
func (c *CatalogIndex) IndexProducts(products []domain.Product) {
	docs := make([]Document, 0, len(products))
	for _, p := range products {
		fields := map[string]string{}
		for i, part := range strings.Split(p.Name, "/") {
			switch i {
			case 0:
				fields["name_en"] = strings.TrimSpace(part)
			case 1:
				fields["name_de"] = strings.TrimSpace(part)
			case 2:
				fields["name_mk"] = strings.TrimSpace(part)
			}
		}
		if p.Description != "" {
			fields["description"] = stripTags(p.Description)
		}
		docs = append(docs, Document{ID: strconv.Itoa(p.ID), Fields: fields, Stored: p})
	}
	c.products.Rebuild(docs)
}

// IndexUnits replaces the unit index content
func (c *CatalogIndex) IndexUnits(units []domain.Unit) {
	docs := make([]Document, 0, len(units))
	for _, u := range units {
		docs = append(docs, Document{
			ID: strconv.Itoa(u.ID),
			Fields: map[string]string{
				"name":        u.Name,
				"name_plural": u.NamePlural,
				"description": u.Description,
			},
			Stored: u,
		})
	}
	c.unitIx.Rebuild(docs)
}

// RebuildProducts reloads the product index from the catalog
func (c *CatalogIndex) RebuildProducts(ctx context.Context) error {
	c.logger.Info("updating product index")
	products, err := c.source.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("rebuild product index: %w", err)
	}
	c.IndexProducts(products)
	c.logger.Info("product index updated", zap.Int("documents", len(products)))
	return nil
}

// RebuildUnits reloads the unit index from the catalog
func (c *CatalogIndex) RebuildUnits(ctx context.Context) error {
	c.logger.Info("updating unit index")
	units, err := c.source.GetQuantityUnits(ctx)
	if err != nil {
		return fmt.Errorf("rebuild unit index: %w", err)
	}
	c.IndexUnits(units)
	c.logger.Info("unit index updated", zap.Int("documents", len(units)))
	return nil
}

// Name identifies the rebuild job
func (c *CatalogIndex) Name() string { return "catalog-index" }

// RunOnce rebuilds both indexes
func (c *CatalogIndex) RunOnce(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.RebuildProducts(gctx) })
	g.Go(func() error { return c.RebuildUnits(gctx) })
	return g.Wait()
}

// stripTags returns the text content of an HTML fragment
func stripTags(fragment string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}
