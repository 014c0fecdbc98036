package openfoodfacts

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pantrylens/backend/internal/domain"
	"github.com/pantrylens/backend/internal/usecase/productdata"
)

// QuantityParser normalizes quantity strings and numbers
type QuantityParser interface {
	ParseValue(v any) (domain.Quantity, error)
}

// Source exposes Open Food Facts as a product data source. Only barcode
// keys are answered; unknown products yield empty data.
type Source struct {
	client *Client
	parser QuantityParser
	info   domain.SourceInfo
	logger *zap.Logger
}

// NewSource creates the source
func NewSource(client *Client, parser QuantityParser, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		client: client,
		parser: parser,
		info:   domain.SourceInfo{Name: "OpenFoodFacts"},
		logger: logger.Named("openfoodfacts"),
	}
}

func (s *Source) Info() domain.SourceInfo { return s.info }

func (s *Source) GetData(ctx context.Context, key domain.ProductKey) (domain.ProductData, error) {
	if key.Type != domain.ProductKeyBarcode {
		return domain.ProductData{}, nil
	}
	code, product, err := s.client.GetProduct(ctx, key.Key)
	if err != nil || product == nil {
		return domain.ProductData{}, err
	}
	return s.mapProduct(key, code, product), nil
}

// mapProduct converts a product into facts. A quantity that does not parse
// drops only that fact.
func (s *Source) mapProduct(key domain.ProductKey, code string, p *Product) domain.ProductData {
	b := productdata.NewBuilder(s.info, key).
		Barcode(code).
		Name(note(p)).
		ImageURL(p.ImageURL)

	unit := ""
	if p.Quantity != "" {
		if q, err := s.parser.ParseValue(p.Quantity); err == nil {
			b.Quantity(q)
			unit = q.Unit
		}
	}

	switch {
	case p.ServingQuantity != nil && p.ServingQuantity != "":
		if q, err := s.parser.ParseValue(p.ServingQuantity); err == nil {
			b.ServingSize(q)
		}
	case p.ServingSize != "":
		if q, err := s.parser.ParseValue(p.ServingSize); err == nil {
			b.ServingSize(q)
			if unit == "" {
				b.Unit(q.Unit)
			}
		}
	}

	if kcal, ok := p.Nutriments["energy-kcal_100g"]; ok {
		if q, err := s.parser.ParseValue(kcal); err == nil {
			b.EnergyPer100(q.Amount)
		}
	}

	data := b.Data()
	s.logger.Debug("mapped product",
		zap.Stringer("key", key),
		zap.Bool("has_name", data.HasName()),
		zap.Bool("has_quantity", data.HasQuantityAmount()))
	return data
}

// note joins product name, brands and quantity into a human readable label
func note(p *Product) string {
	var parts []string
	for _, v := range []string{p.ProductName, p.Brands, p.Quantity} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}
