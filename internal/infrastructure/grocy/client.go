// Package grocy implements the catalog and stock service on top of the
// Grocy REST API.
package grocy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pantrylens/backend/internal/domain"
	"github.com/pantrylens/backend/internal/infrastructure/httpclient"
)

const apiKeyHeader = "GROCY-API-KEY"

var _ domain.CatalogService = (*Client)(nil)

// Client is the Grocy catalog service
type Client struct {
	http   *httpclient.Client
	logger *zap.Logger
}

// NewClient creates a Grocy client limited to rateLimit requests per second
func NewClient(baseURL, apiKey string, rateLimit float64, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("grocy")
	return &Client{
		http: httpclient.New(httpclient.Options{
			BaseURL:   baseURL,
			RateLimit: rateLimit,
			Burst:     20,
			Headers:   map[string]string{apiKeyHeader: apiKey},
			Failure:   domain.ErrCatalogAPIFailure,
			Logger:    logger,
		}),
		logger: logger,
	}
}

// filter builds Grocy's query[] object filters
func filter(conditions ...string) url.Values {
	return url.Values{"query[]": conditions}
}

func (c *Client) GetProducts(ctx context.Context) ([]domain.Product, error) {
	var raw []product
	if err := c.http.GetJSON(ctx, "/api/objects/products", nil, &raw); err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	products := make([]domain.Product, 0, len(raw))
	for _, p := range raw {
		fields, err := decodeUserFields(p.UserFields)
		if err != nil {
			c.logger.Warn("invalid product userfields", zap.Int("product_id", p.ID), zap.Error(err))
		}
		products = append(products, domain.Product{
			ID:             p.ID,
			Name:           p.Name,
			Description:    p.Description,
			StockUnitID:    p.QuIDStock,
			PurchaseUnitID: p.QuIDPurchase,
			PriceUnitID:    p.QuIDPrice,
			CreatedAt:      parseTimestamp(p.RowCreatedTimestamp),
			UserFields:     fields,
		})
	}
	return products, nil
}

// GetProductDetails loads the stock view of a product together with its
// conversions into the stock unit
func (c *Client) GetProductDetails(ctx context.Context, productID int) (*domain.ProductDetails, error) {
	var (
		raw   productDetails
		convs []conversion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.http.GetJSON(gctx, "/api/stock/products/"+strconv.Itoa(productID), nil, &raw)
	})
	g.Go(func() error {
		return c.http.GetJSON(gctx, "/api/objects/quantity_unit_conversions_resolved",
			filter(fmt.Sprintf("product_id=%d", productID)), &convs)
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("get product %d: %w", productID, err)
	}

	var toStock []conversion
	for _, conv := range convs {
		if conv.ProductID == productID && conv.ToQuID == raw.Product.QuIDStock {
			toStock = append(toStock, conv)
		}
	}
	return mapDetails(raw, toStock), nil
}

func (c *Client) GetQuantityUnits(ctx context.Context) ([]domain.Unit, error) {
	var raw []quantityUnit
	if err := c.http.GetJSON(ctx, "/api/objects/quantity_units", nil, &raw); err != nil {
		return nil, fmt.Errorf("get quantity units: %w", err)
	}
	units := make([]domain.Unit, len(raw))
	for i, u := range raw {
		units[i] = u.toDomain()
	}
	return units, nil
}

// GetStockConversions maps product id to unit id to the factor converting
// that unit into the product's stock unit
func (c *Client) GetStockConversions(ctx context.Context) (map[int]map[int]float64, error) {
	return c.conversionsTo(ctx, func(p product) int { return p.QuIDStock }, false)
}

// GetPriceConversions maps product id to unit id to the factor converting
// that unit into the product's price unit. The price unit itself is 1.
func (c *Client) GetPriceConversions(ctx context.Context) (map[int]map[int]float64, error) {
	return c.conversionsTo(ctx, func(p product) int { return p.QuIDPrice }, true)
}

func (c *Client) conversionsTo(ctx context.Context, target func(product) int, withIdentity bool) (map[int]map[int]float64, error) {
	var (
		products []product
		convs    []conversion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.http.GetJSON(gctx, "/api/objects/products", nil, &products)
	})
	g.Go(func() error {
		return c.http.GetJSON(gctx, "/api/objects/quantity_unit_conversions_resolved", nil, &convs)
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("get conversions: %w", err)
	}

	byID := make(map[int]product, len(products))
	result := make(map[int]map[int]float64, len(products))
	for _, p := range products {
		byID[p.ID] = p
		result[p.ID] = map[int]float64{}
		if withIdentity {
			result[p.ID][target(p)] = 1
		}
	}
	for _, conv := range convs {
		p, ok := byID[conv.ProductID]
		if !ok || target(p) != conv.ToQuID {
			continue
		}
		result[p.ID][conv.FromQuID] = conv.Factor
	}
	return result, nil
}

func (c *Client) GetBarcodes(ctx context.Context, productID int) ([]domain.Barcode, error) {
	var raw []barcode
	err := c.http.GetJSON(ctx, "/api/objects/product_barcodes",
		filter(fmt.Sprintf("product_id=%d", productID)), &raw)
	if err != nil {
		return nil, fmt.Errorf("get barcodes of product %d: %w", productID, err)
	}
	barcodes := make([]domain.Barcode, len(raw))
	for i, b := range raw {
		barcodes[i] = b.toDomain()
	}
	return barcodes, nil
}

func (c *Client) UpdateBarcode(ctx context.Context, b domain.Barcode) error {
	err := c.http.SendJSON(ctx, http.MethodPut, "/api/objects/product_barcodes/"+strconv.Itoa(b.ID), barcodeFromDomain(b), nil)
	if err != nil {
		return fmt.Errorf("update barcode %d: %w", b.ID, err)
	}
	return nil
}

func (c *Client) GetProductUserFields(ctx context.Context, productID int) (domain.ProductUserFields, error) {
	var raw json.RawMessage
	if err := c.http.GetJSON(ctx, "/api/userfields/products/"+strconv.Itoa(productID), nil, &raw); err != nil {
		return domain.ProductUserFields{}, fmt.Errorf("get userfields of product %d: %w", productID, err)
	}
	return decodeUserFields(raw)
}

func (c *Client) UpdateProductUserFields(ctx context.Context, productID int, fields domain.ProductUserFields) error {
	err := c.http.SendJSON(ctx, http.MethodPut, "/api/userfields/products/"+strconv.Itoa(productID), encodeUserFields(fields), nil)
	if err != nil {
		return fmt.Errorf("update userfields of product %d: %w", productID, err)
	}
	return nil
}

func (c *Client) GetShoppingList(ctx context.Context) ([]domain.ShoppingListItem, error) {
	var raw []shoppingListItem
	if err := c.http.GetJSON(ctx, "/api/objects/shopping_list", nil, &raw); err != nil {
		return nil, fmt.Errorf("get shopping list: %w", err)
	}
	items := make([]domain.ShoppingListItem, len(raw))
	for i, item := range raw {
		items[i] = item.toDomain()
	}
	return items, nil
}

func (c *Client) ClearShoppingList(ctx context.Context, listID int) error {
	body := map[string]any{"list_id": listID, "done_only": false}
	if err := c.http.SendJSON(ctx, http.MethodPost, "/api/stock/shoppinglist/clear", body, nil); err != nil {
		return fmt.Errorf("clear shopping list %d: %w", listID, err)
	}
	return nil
}

// AddToShoppingList creates an item and returns its id. Amounts are in the
// product's stock unit.
func (c *Client) AddToShoppingList(ctx context.Context, item domain.ShoppingListItem) (int, error) {
	var created createdObject
	err := c.http.SendJSON(ctx, http.MethodPost, "/api/objects/shopping_list", shoppingListItemFromDomain(item), &created)
	if err != nil {
		return 0, fmt.Errorf("add product %d to shopping list: %w", item.ProductID, err)
	}
	return created.CreatedObjectID, nil
}

func (c *Client) UpdateShoppingListItem(ctx context.Context, item domain.ShoppingListItem) error {
	err := c.http.SendJSON(ctx, http.MethodPut, "/api/objects/shopping_list/"+strconv.Itoa(item.ID), shoppingListItemFromDomain(item), nil)
	if err != nil {
		return fmt.Errorf("update shopping list item %d: %w", item.ID, err)
	}
	return nil
}

// MarkShoppingListItemGenerated flags an item as created by the planner
func (c *Client) MarkShoppingListItemGenerated(ctx context.Context, itemID int) error {
	body := map[string]string{fieldGenerated: "1"}
	err := c.http.SendJSON(ctx, http.MethodPut, "/api/userfields/shopping_list/"+strconv.Itoa(itemID), body, nil)
	if err != nil {
		return fmt.Errorf("mark shopping list item %d: %w", itemID, err)
	}
	return nil
}

// GetConsumptionLog returns the consume transactions that were neither
// undone nor spoiled
func (c *Client) GetConsumptionLog(ctx context.Context) ([]domain.ConsumptionEvent, error) {
	var raw []stockLogEntry
	err := c.http.GetJSON(ctx, "/api/objects/stock_log",
		filter("transaction_type=consume", "undone=0", "spoiled=0"), &raw)
	if err != nil {
		return nil, fmt.Errorf("get consumption log: %w", err)
	}
	events := make([]domain.ConsumptionEvent, len(raw))
	for i, e := range raw {
		events[i] = e.toDomain()
	}
	return events, nil
}

