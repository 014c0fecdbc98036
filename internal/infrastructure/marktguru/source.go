package marktguru

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pantrylens/backend/internal/domain"
	"github.com/pantrylens/backend/internal/usecase/offers"
	"github.com/pantrylens/backend/internal/usecase/search"
)

const (
	sourceName     = "MarktGuru"
	noBrand        = "thisisnobrand123"
	validityLayout = "2006-01-02T15:04:05Z"
	defaultMaxAge  = 24 * time.Hour
)

// unitNames translates MarktGuru unit short names into the English names
// the unit index knows
var unitNames = map[string]string{
	"stück":   "piece",
	"stk":     "piece",
	"packung": "pack",
	"pack":    "pack",
	"flasche": "bottle",
	"dose":    "can",
	"beutel":  "bag",
	"becher":  "cup",
	"bund":    "bunch",
	"glas":    "jar",
	"kasten":  "crate",
	"rolle":   "roll",
	"schale":  "tray",
	"netz":    "net",
	"tafel":   "bar",
	"kiste":   "box",
}

// OfferFetcher lists every current offer
type OfferFetcher interface {
	GetAllOffers(ctx context.Context) ([]Offer, error)
}

// Source serves offer searches from an index over the last fetched offers.
// The offers are refetched once they are older than the maximum age.
type Source struct {
	fetcher OfferFetcher
	index   *search.Index
	maxAge  time.Duration
	logger  *zap.Logger

	mu          sync.Mutex
	refreshedAt time.Time
	now         func() time.Time
}

// NewSource creates the offer source. A zero maxAge refreshes daily.
func NewSource(fetcher OfferFetcher, maxAge time.Duration, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Source{
		fetcher: fetcher,
		index:   search.NewOfferIndex(),
		maxAge:  maxAge,
		logger:  logger.Named("marktguru"),
		now:     time.Now,
	}
}

func (s *Source) Name() string { return sourceName }

// RunOnce refetches the offers and rebuilds the index
func (s *Source) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh(ctx)
}

func (s *Source) refresh(ctx context.Context) error {
	start := s.now()
	raw, err := s.fetcher.GetAllOffers(ctx)
	if err != nil {
		return fmt.Errorf("refresh offers: %w", err)
	}

	docs := make([]search.Document, 0, len(raw))
	for _, o := range raw {
		docs = append(docs, document(o))
	}
	s.index.Rebuild(docs)
	s.refreshedAt = start

	s.logger.Info("offer index updated",
		zap.Int("offers", len(docs)),
		zap.Duration("elapsed", s.now().Sub(start)))
	return nil
}

func (s *Source) ensureFresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.refreshedAt.IsZero() && s.now().Sub(s.refreshedAt) < s.maxAge {
		return nil
	}
	return s.refresh(ctx)
}

// Search returns every offer whose indexed text matches query, one per
// advertiser, in relevance order
func (s *Source) Search(ctx context.Context, query string) (*offers.Offers, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}
	result := offers.New()
	for _, hit := range s.index.Search(query, 0) {
		raw := hit.Stored.(Offer)
		for _, o := range s.mapOffer(raw) {
			result.Append(o)
		}
	}
	return result, nil
}

func document(o Offer) search.Document {
	return search.Document{
		ID: strconv.FormatInt(o.ID, 10),
		Fields: map[string]string{
			"product_name": strings.ToLower(o.Product.Name),
			"brand_name":   o.Brand.Name,
			"store_name":   joinNames(o.Advertisers),
			"category":     joinNames(o.Categories),
		},
		Stored: o,
	}
}

func joinNames(list []named) string {
	names := make([]string, len(list))
	for i, n := range list {
		names[i] = n.Name
	}
	return strings.Join(names, ", ")
}

// mapOffer yields one offer per advertiser. Offers without a positive
// reference price use the price.
func (s *Source) mapOffer(raw Offer) []*domain.Offer {
	id := strconv.FormatInt(raw.ID, 10)
	ref := raw.Price
	if raw.ReferencePrice != nil && *raw.ReferencePrice > 0 {
		ref = *raw.ReferencePrice
	}
	brand := raw.Brand.Name
	if brand == noBrand {
		brand = ""
	}

	var result []*domain.Offer
	for i, adv := range raw.Advertisers {
		if i >= len(raw.ValidityDates) {
			break
		}
		from, errFrom := time.Parse(validityLayout, raw.ValidityDates[i].From)
		to, errTo := time.Parse(validityLayout, raw.ValidityDates[i].To)
		if errFrom != nil || errTo != nil {
			s.logger.Warn("invalid offer validity",
				zap.String("offer_id", id),
				zap.String("from", raw.ValidityDates[i].From),
				zap.String("to", raw.ValidityDates[i].To))
			continue
		}
		result = append(result, &domain.Offer{
			ID:                 id,
			SourceName:         sourceName,
			ProductName:        raw.Product.Name,
			BrandName:          brand,
			StoreName:          adv.Name,
			Price:              raw.Price,
			ReferencePrice:     ref,
			Unit:               unitName(raw.Unit.ShortName),
			ValidFrom:          from,
			ValidTo:            to,
			RequiresMembership: raw.RequiresLoyaltyMembership,
			ImageURL:           fmt.Sprintf("https://mg2de.b-cdn.net/api/v1/offers/%s/images/default/0/medium.webp", id),
			SourceURL:          "https://www.marktguru.de/offers/" + id,
			Description:        raw.Description,
		})
	}
	return result
}

// unitName translates a unit short name, keeping unknown names as given
func unitName(short string) string {
	key := strings.ToLower(strings.TrimSpace(short))
	if name, ok := unitNames[key]; ok {
		return name
	}
	return key
}
