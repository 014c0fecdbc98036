package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantrylens/backend/internal/domain"
	"github.com/pantrylens/backend/internal/usecase/quantity"
)

type mockCatalog struct {
	products []domain.Product
	units    []domain.Unit
	err      error
}

func (m *mockCatalog) GetProducts(ctx context.Context) ([]domain.Product, error) {
	return m.products, m.err
}

func (m *mockCatalog) GetQuantityUnits(ctx context.Context) ([]domain.Unit, error) {
	return m.units, m.err
}

func testCatalog() *mockCatalog {
	return &mockCatalog{
		products: []domain.Product{
			{ID: 1, Name: "Milk / Milch / Млеко"},
			{ID: 2, Name: "Tomatoes / Tomaten / Домати", Description: "<p>Fresh <b>cherry</b> tomatoes</p>"},
			{ID: 3, Name: "Butter / Butter / Путер"},
			{ID: 4, Name: "Apples / Äpfel / Јаболка"},
		},
		units: []domain.Unit{
			{ID: 1, Name: "Piece", NamePlural: "Pieces"},
			{ID: 2, Name: "gram", NamePlural: "grams"},
			{ID: 3, Name: "milliliter", NamePlural: "milliliters"},
			{ID: 4, Name: "Pack", NamePlural: "Packs", Description: "packaged unit"},
		},
	}
}

func TestTextAnalyzer(t *testing.T) {
	t.Run("english lemmas and stop words", func(t *testing.T) {
		a := NewTextAnalyzer("en")
		assert.Equal(t, []string{"cherry", "tomato", "box"}, a.Tokens("The Cherries and tomatoes in 2 boxes"))
	})

	t.Run("german folding", func(t *testing.T) {
		a := NewTextAnalyzer("de")
		assert.Equal(t, []string{"apfel", "frisch"}, a.Tokens("Äpfel, frische 500"))
	})

	t.Run("keyword analyzer keeps whole value", func(t *testing.T) {
		assert.Equal(t, []string{"fl oz"}, KeywordAnalyzer{}.Tokens(" Fl Oz "))
		assert.Nil(t, KeywordAnalyzer{}.Tokens("  "))
	})
}

func TestIndex_Search(t *testing.T) {
	ix := NewIndex(
		Field{Name: "name", Analyzer: NewTextAnalyzer("en"), Fuzzy: true},
		Field{Name: "description", Analyzer: NewTextAnalyzer("en")},
	)
	ix.Rebuild([]Document{
		{ID: "a", Fields: map[string]string{"name": "whole milk"}},
		{ID: "b", Fields: map[string]string{"name": "chocolate milk"}},
		{ID: "c", Fields: map[string]string{"name": "cheddar cheese", "description": "milk product"}},
	})

	t.Run("OR combines terms across fields", func(t *testing.T) {
		hits := ix.Search("milk", 0)
		require.Len(t, hits, 3)
		// the term is rarer in descriptions, ties keep insertion order
		assert.Equal(t, "c", hits[0].ID)
		assert.Equal(t, "a", hits[1].ID)
		assert.Equal(t, "b", hits[2].ID)
	})

	t.Run("more matching terms rank higher", func(t *testing.T) {
		hits := ix.Search("chocolate milk", 1)
		require.Len(t, hits, 1)
		assert.Equal(t, "b", hits[0].ID)
	})

	t.Run("fuzzy matches typos", func(t *testing.T) {
		hits := ix.Search("chedar", 0)
		require.Len(t, hits, 1)
		assert.Equal(t, "c", hits[0].ID)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, ix.Search("bread", 0))
	})

	t.Run("repeated searches are deterministic", func(t *testing.T) {
		first := ix.Search("milk cheese", 0)
		for i := 0; i < 20; i++ {
			assert.Equal(t, first, ix.Search("milk cheese", 0))
		}
	})
}

func TestIndex_RebuildIsWholesale(t *testing.T) {
	ix := NewIndex(Field{Name: "name", Analyzer: SimpleAnalyzer{}})
	ix.Rebuild([]Document{{ID: "1", Fields: map[string]string{"name": "old"}}})
	ix.Rebuild([]Document{{ID: "2", Fields: map[string]string{"name": "new"}}})

	assert.Equal(t, 1, ix.Len())
	assert.Empty(t, ix.Search("old", 0))
	assert.Len(t, ix.Search("new", 0), 1)
}

func TestIndex_ConcurrentRebuildAndQuery(t *testing.T) {
	ix := NewIndex(Field{Name: "name", Analyzer: SimpleAnalyzer{}})
	full := make([]Document, 50)
	for i := range full {
		full[i] = Document{ID: string(rune('a' + i%26)), Fields: map[string]string{"name": "item"}}
	}
	ix.Rebuild(full)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			ix.Rebuild(full)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			// every generation is complete
			assert.Len(t, ix.Search("item", 0), 50)
		}
	}()
	wg.Wait()
}

func TestCatalogIndex_QueryProduct(t *testing.T) {
	ci := NewCatalogIndex(testCatalog(), quantity.NewParser(nil), nil)
	require.NoError(t, ci.RebuildProducts(context.Background()))

	tests := []struct {
		query  string
		wantID int
	}{
		{"milk", 1},
		{"Vollmilch Milch", 1},
		{"cherry", 2},
		{"Tomaten", 2},
		{"apfel", 4},
		{"Butter", 3},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p, ok := ci.QueryProduct(tt.query)
			require.True(t, ok)
			assert.Equal(t, tt.wantID, p.ID)
		})
	}

	_, ok := ci.QueryProduct("motor oil")
	assert.False(t, ok)
}

func TestCatalogIndex_QueryUnit(t *testing.T) {
	ci := NewCatalogIndex(testCatalog(), quantity.NewParser(nil), nil)
	require.NoError(t, ci.RebuildUnits(context.Background()))

	t.Run("keyword match on name", func(t *testing.T) {
		u, ok := ci.QueryUnit("Piece")
		require.True(t, ok)
		assert.Equal(t, 1, u.ID)
	})

	t.Run("plural name", func(t *testing.T) {
		u, ok := ci.QueryUnit("packs")
		require.True(t, ok)
		assert.Equal(t, 4, u.ID)
	})

	t.Run("falls back to canonical unit name", func(t *testing.T) {
		u, ok := ci.QueryUnit("g")
		require.True(t, ok)
		assert.Equal(t, 2, u.ID)

		u, ok = ci.QueryUnit("stk")
		require.True(t, ok)
		assert.Equal(t, 1, u.ID)
	})

	t.Run("unknown unit is empty, not an error", func(t *testing.T) {
		_, ok := ci.QueryUnit("bottle")
		assert.False(t, ok)
	})
}

func TestCatalogIndex_RebuildFailureKeepsOldIndex(t *testing.T) {
	catalog := testCatalog()
	ci := NewCatalogIndex(catalog, nil, nil)
	require.NoError(t, ci.RunOnce(context.Background()))

	catalog.err = errors.New("catalog down")
	require.Error(t, ci.RebuildProducts(context.Background()))

	p, ok := ci.QueryProduct("milk")
	require.True(t, ok)
	assert.Equal(t, 1, p.ID)
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Fresh  cherry  tomatoes", stripTags("<p>Fresh <b>cherry</b> tomatoes</p>"))
}
