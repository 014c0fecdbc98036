// Package modelstore persists fitted forecast models in sqlite or postgres.
package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pantrylens/backend/internal/domain"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	createTable = `CREATE TABLE IF NOT EXISTS forecast_models (
		product_id INTEGER PRIMARY KEY,
		model      TEXT    NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	upsertModel = `INSERT INTO forecast_models (product_id, model, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (product_id) DO UPDATE SET model = excluded.model, updated_at = excluded.updated_at`
	selectModel = `SELECT model FROM forecast_models WHERE product_id = ?`
)

// SQLStore keeps one model row per product
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

// Open connects to dsn with driver and creates the models table
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: unsupported storage driver %q", domain.ErrInvalidRequest, driver)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", driver, err)
	}

	s := &SQLStore{db: db, driver: driver, logger: logger.Named("modelstore")}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", driver, err)
	}
	return s, nil
}

// Close releases the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the model of productID
func (s *SQLStore) Save(ctx context.Context, productID int, model []byte) error {
	_, err := s.db.ExecContext(ctx, s.rebind(upsertModel), productID, string(model), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save model %d: %w", productID, err)
	}
	s.logger.Debug("model saved", zap.Int("product_id", productID), zap.Int("bytes", len(model)))
	return nil
}

// Load returns the model of productID or domain.ErrModelNotFound
func (s *SQLStore) Load(ctx context.Context, productID int) ([]byte, error) {
	var model string
	err := s.db.QueryRowContext(ctx, s.rebind(selectModel), productID).Scan(&model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", productID, domain.ErrModelNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load model %d: %w", productID, err)
	}
	return []byte(model), nil
}

// rebind converts ? placeholders into $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
