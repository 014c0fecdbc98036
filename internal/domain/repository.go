package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ProductDataSource supplies provenance-tagged facts for a product key.
// Absent data is an empty ProductData, not an error; errors are reserved
// for real faults.
type ProductDataSource interface {
	Info() SourceInfo
	GetData(ctx context.Context, key ProductKey) (ProductData, error)
}

// ConsumptionFeed is the historical transaction feed
type ConsumptionFeed interface {
	GetConsumptionLog(ctx context.Context) ([]ConsumptionEvent, error)
}

// ModelStore persists serialized forecast models keyed by product id
type ModelStore interface {
	Save(ctx context.Context, productID int, model []byte) error
	Load(ctx context.Context, productID int) ([]byte, error)
}

// CatalogService is the external catalog/stock collaborator. Consumers
// depend on the narrow subsets they need.
type CatalogService interface {
	ConsumptionFeed

	GetProducts(ctx context.Context) ([]Product, error)
	GetProductDetails(ctx context.Context, productID int) (*ProductDetails, error)
	GetQuantityUnits(ctx context.Context) ([]Unit, error)
	GetStockConversions(ctx context.Context) (map[int]map[int]float64, error)
	GetPriceConversions(ctx context.Context) (map[int]map[int]float64, error)
	GetBarcodes(ctx context.Context, productID int) ([]Barcode, error)
	UpdateBarcode(ctx context.Context, barcode Barcode) error
	GetProductUserFields(ctx context.Context, productID int) (ProductUserFields, error)
	UpdateProductUserFields(ctx context.Context, productID int, fields ProductUserFields) error
	GetShoppingList(ctx context.Context) ([]ShoppingListItem, error)
	ClearShoppingList(ctx context.Context, listID int) error
	AddToShoppingList(ctx context.Context, item ShoppingListItem) (int, error)
	UpdateShoppingListItem(ctx context.Context, item ShoppingListItem) error
	MarkShoppingListItemGenerated(ctx context.Context, itemID int) error
}
