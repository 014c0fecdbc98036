package search

// NewOfferIndex creates the index offers are searched through. Category,
// brand and product name weigh more than the store.
func NewOfferIndex() *Index {
	de := NewTextAnalyzer("de")
	return NewIndex(
		Field{Name: "product_name", Analyzer: de, Boost: 2, Fuzzy: true},
		Field{Name: "brand_name", Analyzer: de, Boost: 2},
		Field{Name: "category", Analyzer: de, Boost: 3, Fuzzy: true},
		Field{Name: "store_name", Analyzer: de},
	)
}
