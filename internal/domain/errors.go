package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrParseFailure is returned when a quantity string cannot be parsed
	ErrParseFailure = errors.New("quantity parse failure")

	// ErrSourceFault is returned when a product fact or offer source errored instead of returning empty data
	ErrSourceFault = errors.New("data source fault")

	// ErrForecastFault is returned when a consumption model cannot be fitted or evaluated
	ErrForecastFault = errors.New("forecast fault")

	// ErrModelNotFound is returned when no fitted model exists for a product
	ErrModelNotFound = errors.New("forecast model not found")

	// ErrNotFound is returned when a referenced store or catalog entity is absent
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCatalogAPIFailure is returned when a catalog/stock service request fails
	ErrCatalogAPIFailure = errors.New("catalog API request failed")

	// ErrProductDataAPIFailure is returned when a product database request fails
	ErrProductDataAPIFailure = errors.New("product data API request failed")

	// ErrOfferAPIFailure is returned when an offer provider request fails
	ErrOfferAPIFailure = errors.New("offer API request failed")
)

// ParseError reports a quantity string that could not be normalized.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse quantity %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrParseFailure
}

// SourceError annotates a source failure with the key that was being looked up.
type SourceError struct {
	Source string
	Key    ProductKey
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %q failed for %s: %v", e.Source, e.Key, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{ErrSourceFault, e.Err}
}
