// Package productdb reads product facts from a cleaned retailer product
// dump stored in sqlite (table dm_products_cleaned).
package productdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pantrylens/backend/internal/domain"
	"github.com/pantrylens/backend/internal/usecase/productdata"
)

const (
	byGTIN = `SELECT gtin, name, brand, unit_quantity, unit_quantity_unit
		FROM dm_products_cleaned WHERE gtin = ? LIMIT 1`
	byName = `SELECT gtin, name, brand, unit_quantity, unit_quantity_unit
		FROM dm_products_cleaned WHERE name = ? COLLATE NOCASE ORDER BY gtin LIMIT 1`
)

// QuantityParser normalizes quantity strings
type QuantityParser interface {
	Parse(text string) (domain.Quantity, error)
}

// Source answers barcode and product name keys from the dump
type Source struct {
	db     *sql.DB
	parser QuantityParser
	info   domain.SourceInfo
	logger *zap.Logger
}

// Open opens the sqlite dump at path
func Open(path string, parser QuantityParser, logger *zap.Logger) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sqlite path error: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return New(db, parser, logger), nil
}

// New wraps an open database
func New(db *sql.DB, parser QuantityParser, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		db:     db,
		parser: parser,
		info:   domain.SourceInfo{Name: "dm"},
		logger: logger.Named("productdb"),
	}
}

// Close releases the database
func (s *Source) Close() error {
	return s.db.Close()
}

func (s *Source) Info() domain.SourceInfo { return s.info }

type row struct {
	gtin, name, brand sql.NullString
	amount            sql.NullFloat64
	unit              sql.NullString
}

func (s *Source) GetData(ctx context.Context, key domain.ProductKey) (domain.ProductData, error) {
	query := byGTIN
	if key.Type == domain.ProductKeyName {
		query = byName
	}

	var r row
	err := s.db.QueryRowContext(ctx, query, key.Key).Scan(&r.gtin, &r.name, &r.brand, &r.amount, &r.unit)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductData{}, nil
	}
	if err != nil {
		return domain.ProductData{}, fmt.Errorf("query dm_products_cleaned: %w", err)
	}

	b := productdata.NewBuilder(s.info, key).
		Barcode(r.gtin.String).
		Name(label(r.brand.String, r.name.String))

	if r.amount.Valid && r.amount.Float64 > 0 {
		text := strconv.FormatFloat(r.amount.Float64, 'f', -1, 64) + " " + r.unit.String
		if q, err := s.parser.Parse(text); err == nil {
			b.Quantity(q)
		} else {
			s.logger.Warn("skipping unparsable package quantity", zap.Stringer("key", key), zap.String("quantity", text))
		}
	}
	return b.Data(), nil
}

// label prefixes the product name with its brand unless already present
func label(brand, name string) string {
	brand, name = strings.TrimSpace(brand), strings.TrimSpace(name)
	switch {
	case brand == "":
		return name
	case name == "":
		return brand
	case strings.HasPrefix(strings.ToLower(name), strings.ToLower(brand)):
		return name
	}
	return brand + " " + name
}
