// Package openfoodfacts looks up packaged products on Open Food Facts.
package openfoodfacts

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/pantrylens/backend/internal/domain"
	"github.com/pantrylens/backend/internal/infrastructure/httpclient"
)

// DefaultBaseURL is the public Open Food Facts API root
const DefaultBaseURL = "https://world.openfoodfacts.org"

const productFields = "code,product_name,brands,quantity,image_url,serving_quantity,serving_size,nutriments"

// Client handles communication with the Open Food Facts API
type Client struct {
	http   *httpclient.Client
	logger *zap.Logger
}

// NewClient creates a client limited to rateLimit requests per second
func NewClient(baseURL string, rateLimit float64, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger = logger.Named("openfoodfacts")
	return &Client{
		http: httpclient.New(httpclient.Options{
			BaseURL:   baseURL,
			RateLimit: rateLimit,
			Burst:     5,
			Failure:   domain.ErrProductDataAPIFailure,
			Logger:    logger,
		}),
		logger: logger,
	}
}

// productResponse is the envelope of /api/v2/product/{barcode}
type productResponse struct {
	Code    string   `json:"code"`
	Status  int      `json:"status"`
	Product *Product `json:"product"`
}

// Product holds the fields read from an Open Food Facts product. Numeric
// fields arrive as either numbers or strings.
type Product struct {
	ProductName     string         `json:"product_name"`
	Brands          string         `json:"brands"`
	Quantity        string         `json:"quantity"`
	ImageURL        string         `json:"image_url"`
	ServingQuantity any            `json:"serving_quantity"`
	ServingSize     string         `json:"serving_size"`
	Nutriments      map[string]any `json:"nutriments"`
}

// GetProduct returns the product for barcode, or nil when it is unknown
func (c *Client) GetProduct(ctx context.Context, barcode string) (string, *Product, error) {
	c.logger.Debug("GetProduct called", zap.String("barcode", barcode))

	var resp productResponse
	err := c.http.GetJSON(ctx, "/api/v2/product/"+url.PathEscape(barcode)+".json",
		url.Values{"fields": {productFields}}, &resp)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("get product %s: %w", barcode, err)
	}
	if resp.Status != 1 || resp.Product == nil {
		return "", nil, nil
	}
	return resp.Code, resp.Product, nil
}
