package offers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pantrylens/backend/internal/domain"
)

// offerTimeLayout is how validity dates are written to catalog fields
const offerTimeLayout = "2006-01-02 15:04:05"

// Catalog is the part of the catalog service offer updates need
type Catalog interface {
	GetProducts(ctx context.Context) ([]domain.Product, error)
	GetPriceConversions(ctx context.Context) (map[int]map[int]float64, error)
	UpdateProductUserFields(ctx context.Context, productID int, fields domain.ProductUserFields) error
}

// Query describes what to look for and how to rank it
type Query struct {
	Text            string
	PreferredBrands []string
	BannedBrands    []string
	Stores          []string
	Day             time.Time
	// UnitFactors converts catalog unit ids into the price unit. Nil
	// disables the unit filter.
	UnitFactors map[int]float64
}

// UpdateResult counts the outcome of an offer update run
type UpdateResult struct {
	Products  int `json:"products"`
	WithOffer int `json:"withOffer"`
	Updated   int `json:"updated"`
	Cleared   int `json:"cleared"`
}

// Service runs the canonical shopping ranking over an offer source
type Service struct {
	source      Source
	catalog     Catalog
	units       UnitIndex
	concurrency int
	logger      *zap.Logger
}

// NewService creates the offer service
func NewService(source Source, catalog Catalog, units UnitIndex, concurrency int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Service{
		source:      source,
		catalog:     catalog,
		units:       units,
		concurrency: concurrency,
		logger:      logger.Named("offers"),
	}
}

// BestOffer searches candidates and returns the one with the best brand
// preference and, among equals, the lowest reference price
func (s *Service) BestOffer(ctx context.Context, q Query) (*domain.Offer, bool, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, false, fmt.Errorf("%w: empty offer query", domain.ErrInvalidRequest)
	}
	candidates, err := s.source.Search(ctx, q.Text)
	if err != nil {
		return nil, false, err
	}

	candidates.AddPreference(NewBrandPreference(q.PreferredBrands))
	if !q.Day.IsZero() {
		candidates.AddFilter(TimeFilter{Day: q.Day})
	}
	candidates.AddFilter(NewBannedBrandsFilter(q.BannedBrands))
	if q.UnitFactors != nil && s.units != nil {
		candidates.AddFilter(AllowedUnitsFilter{Units: s.units, Factors: q.UnitFactors})
	}
	candidates.AddFilter(NewSelectedStoresFilter(q.Stores))
	candidates.SetSortOrder(ByPreferenceThenReferencePrice(BrandPreferenceName))

	offer, ok := candidates.TopOffer()
	s.logger.Debug("offer query",
		zap.String("text", q.Text),
		zap.Int("candidates", candidates.Len()),
		zap.Bool("found", ok))
	return offer, ok, nil
}

// UpdateOffers finds the best offer for every catalog product and records
// it on the product, clearing offers that no longer apply
func (s *Service) UpdateOffers(ctx context.Context, stores []string, day time.Time) (UpdateResult, error) {
	logger := s.logger.With(zap.String("run_id", uuid.NewString()))
	logger.Info("search offers for each catalog product")
	start := time.Now()

	var (
		products    []domain.Product
		conversions map[int]map[int]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = s.catalog.GetProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		conversions, err = s.catalog.GetPriceConversions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return UpdateResult{}, fmt.Errorf("load catalog: %w", err)
	}

	var (
		mu     sync.Mutex
		result = UpdateResult{Products: len(products)}
	)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, product := range products {
		g.Go(func() error {
			res, err := s.updateProduct(gctx, product, conversions[product.ID], stores, day)
			if err != nil {
				return fmt.Errorf("product %d: %w", product.ID, err)
			}
			mu.Lock()
			defer mu.Unlock()
			switch res {
			case outcomeUnchanged:
				result.WithOffer++
			case outcomeUpdated:
				result.WithOffer++
				result.Updated++
			case outcomeCleared:
				result.Cleared++
			}
			return nil
		})
	}
	err := g.Wait()

	logger.Info("offer update finished",
		zap.Int("products", result.Products),
		zap.Int("with_offer", result.WithOffer),
		zap.Int("updated", result.Updated),
		zap.Int("cleared", result.Cleared),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return result, err
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeUnchanged
	outcomeUpdated
	outcomeCleared
)

func (s *Service) updateProduct(ctx context.Context, product domain.Product, factors map[int]float64, stores []string, day time.Time) (outcome, error) {
	fields := product.UserFields
	text := SearchName(product.Name)
	if text == "" {
		return outcomeNone, nil
	}
	if factors == nil {
		factors = map[int]float64{}
	}
	offer, ok, err := s.BestOffer(ctx, Query{
		Text:            text,
		PreferredBrands: fields.PreferredBrands,
		BannedBrands:    fields.BannedBrands,
		Stores:          stores,
		Day:             day,
		UnitFactors:     factors,
	})
	if err != nil {
		return outcomeNone, err
	}

	switch {
	case ok:
		if fields.OfferLink != nil && *fields.OfferLink == offer.SourceURL {
			return outcomeUnchanged, nil
		}
		ApplyOffer(&fields, offer)
		if err := s.catalog.UpdateProductUserFields(ctx, product.ID, fields); err != nil {
			return outcomeNone, err
		}
		return outcomeUpdated, nil
	case fields.HasOffer():
		fields.ClearOffer()
		if err := s.catalog.UpdateProductUserFields(ctx, product.ID, fields); err != nil {
			return outcomeNone, err
		}
		return outcomeCleared, nil
	}
	return outcomeNone, nil
}

// ApplyOffer records offer on the product's offer fields. Prices are per
// price unit; the amount is how many price units the offer holds.
func ApplyOffer(fields *domain.ProductUserFields, offer *domain.Offer) {
	title := offer.DisplayName()
	from := offer.ValidFrom.Format(offerTimeLayout)
	to := offer.ValidTo.Format(offerTimeLayout)
	price := offer.ReferencePrice
	amount := 1.0
	if offer.ReferencePrice != 0 {
		amount = offer.Price / offer.ReferencePrice
	}

	fields.OfferStore = &offer.StoreName
	fields.OfferTitle = &title
	fields.OfferLink = &offer.SourceURL
	fields.OfferPrice = &price
	fields.OfferAmount = &amount
	fields.OfferMemberRequired = &offer.RequiresMembership
	fields.OfferFrom = &from
	fields.OfferTo = &to
	fields.OfferNote = &offer.Description
}

// SearchName picks the name used to search offers. Catalog names are
// "English / German / Macedonian" and offers are German.
func SearchName(name string) string {
	parts := strings.Split(name, "/")
	if len(parts) > 1 {
		name = parts[1]
	}
	return CleanQuery(name)
}
