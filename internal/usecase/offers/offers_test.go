package offers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantrylens/backend/internal/domain"
)

var (
	validFrom = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	validTo   = time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC)
)

func offer(id, brand, store string, price, ref float64, unit string) *domain.Offer {
	return &domain.Offer{
		ID:             id,
		SourceName:     "test",
		ProductName:    "Milch",
		BrandName:      brand,
		StoreName:      store,
		Price:          price,
		ReferencePrice: ref,
		Unit:           unit,
		ValidFrom:      validFrom,
		ValidTo:        validTo,
		SourceURL:      "https://offers.example/" + id,
	}
}

type mockUnits map[string]domain.Unit

func (m mockUnits) QueryUnit(text string) (domain.Unit, bool) {
	u, ok := m[text]
	return u, ok
}

var units = mockUnits{
	"kg":    {ID: 2, Name: "kilogram"},
	"l":     {ID: 3, Name: "liter"},
	"stück": {ID: 1, Name: "piece"},
}

func TestOffers_TopOfferRanking(t *testing.T) {
	set := New(
		offer("1", "", "REWE", 1.29, 1.29, "l"),
		offer("2", "Weihenstephan", "EDEKA", 1.59, 1.59, "l"),
		offer("3", "Landliebe", "Kaufland", 1.19, 1.19, "l"),
		offer("4", "weihenstephan ", "Lidl", 1.49, 1.49, "l"),
	)
	set.AddPreference(NewBrandPreference([]string{"Weihenstephan"}))
	set.SetSortOrder(ByPreferenceThenReferencePrice(BrandPreferenceName))

	top, ok := set.TopOffer()
	require.True(t, ok)
	assert.Equal(t, "4", top.ID, "preferred brand first, then cheapest")
	assert.Equal(t, 1.0, top.Preferences["brand"])

	final := set.FinalOffers()
	var ids []string
	for _, o := range final {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"4", "2", "3", "1"}, ids)
}

func TestOffers_StableForTies(t *testing.T) {
	set := New(
		offer("a", "", "X", 1, 1, "l"),
		offer("b", "", "Y", 1, 1, "l"),
		offer("c", "", "Z", 1, 1, "l"),
	)
	set.AddPreference(NewBrandPreference(nil))
	set.SetSortOrder(ByPreferenceThenReferencePrice(BrandPreferenceName))

	final := set.FinalOffers()
	require.Len(t, final, 3)
	assert.Equal(t, "a", final[0].ID)
	assert.Equal(t, "b", final[1].ID)
	assert.Equal(t, "c", final[2].ID)
}

func TestOffers_EmptyAndAllFiltered(t *testing.T) {
	_, ok := New().TopOffer()
	assert.False(t, ok)

	set := New(offer("1", "", "REWE", 1, 1, "l"))
	set.AddFilter(FilterFunc(func(*domain.Offer) bool { return false }))
	_, ok = set.TopOffer()
	assert.False(t, ok)
}

func TestOffers_RepeatedTopOfferIsDeterministic(t *testing.T) {
	set := New(
		offer("1", "", "REWE", 2.0, 2.0, "kg"),
		offer("2", "", "REWE", 0.9, 0.9, "l"),
	)
	set.AddFilter(AllowedUnitsFilter{Units: units, Factors: map[int]float64{2: 2, 3: 1}})
	set.SetSortOrder(ByPreferenceThenReferencePrice(BrandPreferenceName))

	first, ok := set.TopOffer()
	require.True(t, ok)
	for i := 0; i < 5; i++ {
		again, _ := set.TopOffer()
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "2", first.ID)
}

func TestAllowedUnitsFilter(t *testing.T) {
	f := AllowedUnitsFilter{Units: units, Factors: map[int]float64{2: 4}}

	t.Run("rescales accepted offers", func(t *testing.T) {
		o := offer("1", "", "REWE", 8, 6, "kg")
		require.True(t, f.Filter(o))
		assert.Equal(t, 2.0, o.Price)
		assert.Equal(t, 1.5, o.ReferencePrice)
	})

	t.Run("rejects units without factor", func(t *testing.T) {
		o := offer("2", "", "REWE", 8, 6, "l")
		assert.False(t, f.Filter(o))
		assert.Equal(t, 6.0, o.ReferencePrice)
	})

	t.Run("rejects unknown units", func(t *testing.T) {
		assert.False(t, f.Filter(offer("3", "", "REWE", 1, 1, "bund")))
	})

	t.Run("candidate set keeps original prices", func(t *testing.T) {
		original := offer("4", "", "REWE", 8, 6, "kg")
		set := New(original)
		set.AddFilter(f)
		top, ok := set.TopOffer()
		require.True(t, ok)
		assert.Equal(t, 1.5, top.ReferencePrice)
		assert.Equal(t, 6.0, original.ReferencePrice)
	})
}

func TestTimeFilter(t *testing.T) {
	o := offer("1", "", "REWE", 1, 1, "l")
	tests := []struct {
		day  time.Time
		want bool
	}{
		{time.Date(2024, 3, 3, 23, 0, 0, 0, time.UTC), false},
		{time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.day.Format(time.DateOnly), func(t *testing.T) {
			assert.Equal(t, tt.want, TimeFilter{Day: tt.day}.Filter(o))
		})
	}
}

func TestBannedBrandsFilter(t *testing.T) {
	f := NewBannedBrandsFilter([]string{" Müller ", "ja!"})
	assert.False(t, f.Filter(offer("1", "müller", "REWE", 1, 1, "l")))
	assert.False(t, f.Filter(offer("2", "JA!", "REWE", 1, 1, "l")))
	assert.True(t, f.Filter(offer("3", "Landliebe", "REWE", 1, 1, "l")))
	assert.True(t, f.Filter(offer("4", "", "REWE", 1, 1, "l")))
}

func TestSelectedStoresFilter(t *testing.T) {
	f := NewSelectedStoresFilter([]string{"rewe", " Lidl"})
	assert.True(t, f.Filter(offer("1", "", "REWE City", 1, 1, "l")))
	assert.True(t, f.Filter(offer("2", "", "Lidl", 1, 1, "l")))
	assert.False(t, f.Filter(offer("3", "", "Aldi Süd", 1, 1, "l")))

	all := NewSelectedStoresFilter(nil)
	assert.True(t, all.Filter(offer("4", "", "Aldi Süd", 1, 1, "l")))
}

func TestBrandPreference_Weighted(t *testing.T) {
	p := NewWeightedBrandPreference(map[string]float64{"Landliebe": 0.5, "Weihenstephan": 1.5})
	assert.Equal(t, 0.5, p.Score(offer("1", "landliebe", "", 1, 1, "l")))
	assert.Equal(t, 1.5, p.Score(offer("2", "Weihenstephan", "", 1, 1, "l")))
	assert.Equal(t, 2.0, p.Score(offer("3", "Other", "", 1, 1, "l")))
	assert.Equal(t, 2.0, p.Score(offer("4", "", "", 1, 1, "l")))
	assert.Equal(t, "brand", p.Name())
}

// staticSource returns fresh copies of fixed offers
type staticSource struct {
	name   string
	offers []*domain.Offer
	err    error
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Search(ctx context.Context, query string) (*Offers, error) {
	if s.err != nil {
		return nil, s.err
	}
	set := New()
	for _, o := range s.offers {
		set.Append(o.Clone())
	}
	return set, nil
}

func TestComposite_Concatenates(t *testing.T) {
	a := &staticSource{name: "a", offers: []*domain.Offer{offer("1", "", "X", 1, 1, "l")}}
	b := &staticSource{name: "b", offers: []*domain.Offer{offer("1", "", "X", 1, 1, "l"), offer("2", "", "Y", 1, 1, "l")}}

	c := NewComposite(a, b)
	assert.Equal(t, "a, b", c.Name())

	set, err := c.Search(context.Background(), "milch")
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len(), "no dedup across sources")
}

func TestComposite_SourceFault(t *testing.T) {
	c := NewComposite(&staticSource{name: "ok"}, &staticSource{name: "broken", err: errors.New("503")})
	_, err := c.Search(context.Background(), "milch")
	assert.ErrorIs(t, err, domain.ErrSourceFault)
	assert.Contains(t, err.Error(), "broken")
}

type mockCatalog struct {
	mu       sync.Mutex
	products []domain.Product
	factors  map[int]map[int]float64
	updates  map[int]domain.ProductUserFields
}

func (m *mockCatalog) GetProducts(ctx context.Context) ([]domain.Product, error) {
	return m.products, nil
}

func (m *mockCatalog) GetPriceConversions(ctx context.Context) (map[int]map[int]float64, error) {
	return m.factors, nil
}

func (m *mockCatalog) UpdateProductUserFields(ctx context.Context, productID int, fields domain.ProductUserFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[productID] = fields
	return nil
}

func TestService_BestOffer(t *testing.T) {
	src := &staticSource{name: "mg", offers: []*domain.Offer{
		offer("1", "Müller", "REWE", 0.99, 0.99, "l"),
		offer("2", "Landliebe", "REWE", 1.29, 1.29, "l"),
		offer("3", "Landliebe", "Aldi", 1.09, 1.09, "l"),
	}}
	svc := NewService(src, nil, units, 2, nil)

	best, ok, err := svc.BestOffer(context.Background(), Query{
		Text:            "Milch",
		PreferredBrands: []string{"Landliebe"},
		BannedBrands:    []string{"Müller"},
		Stores:          []string{"rewe"},
		Day:             time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		UnitFactors:     map[int]float64{3: 1},
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", best.ID)

	_, _, err = svc.BestOffer(context.Background(), Query{Text: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestService_UpdateOffers(t *testing.T) {
	oldLink := "https://offers.example/old"
	oldTitle := "Old offer"
	sameLink := "https://offers.example/1"
	sameTitle := "Milch"

	catalog := &mockCatalog{
		products: []domain.Product{
			{ID: 1, Name: "Milk / Milch / Млеко"},
			{ID: 2, Name: "Flour / Mehl / Брашно", UserFields: domain.ProductUserFields{OfferTitle: &oldTitle, OfferLink: &oldLink}},
			{ID: 3, Name: "Milk 2 / Milch / Млеко", UserFields: domain.ProductUserFields{OfferTitle: &sameTitle, OfferLink: &sameLink}},
			{ID: 4, Name: "Salt / Salz / Сол"},
		},
		factors: map[int]map[int]float64{1: {3: 1}, 3: {3: 1}},
		updates: map[int]domain.ProductUserFields{},
	}
	src := &milchOnlySource{offer: offer("1", "Landliebe", "REWE", 2.58, 1.29, "l")}
	svc := NewService(src, catalog, units, 2, nil)

	res, err := svc.UpdateOffers(context.Background(), nil, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Products: 4, WithOffer: 2, Updated: 1, Cleared: 1}, res)

	got := catalog.updates[1]
	require.NotNil(t, got.OfferTitle)
	assert.Equal(t, "Landliebe Milch", *got.OfferTitle)
	assert.Equal(t, "REWE", *got.OfferStore)
	assert.Equal(t, 1.29, *got.OfferPrice)
	assert.Equal(t, 2.0, *got.OfferAmount)
	assert.Equal(t, "2024-03-04 00:00:00", *got.OfferFrom)
	assert.Equal(t, sameLink, *got.OfferLink)

	cleared := catalog.updates[2]
	assert.False(t, cleared.HasOffer())
	assert.Nil(t, cleared.OfferLink)

	_, touched := catalog.updates[3]
	assert.False(t, touched, "same offer link is not rewritten")
}

// milchOnlySource matches only the query "Milch"
type milchOnlySource struct {
	offer *domain.Offer
}

func (s *milchOnlySource) Name() string { return "milch" }

func (s *milchOnlySource) Search(ctx context.Context, query string) (*Offers, error) {
	if query != "Milch" {
		return New(), nil
	}
	return New(s.offer.Clone()), nil
}

func TestSearchName(t *testing.T) {
	assert.Equal(t, "Milch", SearchName("Milk / Milch / Млеко"))
	assert.Equal(t, "Bread", SearchName(" Bread "))
}
