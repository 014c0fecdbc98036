// Package marktguru reads the weekly retailer offers published by MarktGuru.
package marktguru

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/pantrylens/backend/internal/domain"
	"github.com/pantrylens/backend/internal/infrastructure/httpclient"
)

// DefaultBaseURL is the MarktGuru API root
const DefaultBaseURL = "https://api.marktguru.de"

const pageSize = 500

// Options configures the MarktGuru client
type Options struct {
	BaseURL   string
	APIKey    string
	ClientKey string
	ZipCode   string
	RateLimit float64
}

// Client handles communication with the MarktGuru API
type Client struct {
	http     *httpclient.Client
	zipCode  string
	pageSize int
	logger   *zap.Logger
}

// NewClient creates a MarktGuru client
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	logger = logger.Named("marktguru")
	return &Client{
		http: httpclient.New(httpclient.Options{
			BaseURL:   opts.BaseURL,
			RateLimit: opts.RateLimit,
			Burst:     2,
			Headers: map[string]string{
				"x-clientkey": opts.ClientKey,
				"x-apikey":    opts.APIKey,
			},
			Failure: domain.ErrOfferAPIFailure,
			Logger:  logger,
		}),
		zipCode:  opts.ZipCode,
		pageSize: pageSize,
		logger:   logger,
	}
}

type offersPage struct {
	Results      []Offer `json:"results"`
	TotalResults int     `json:"totalResults"`
}

// Offer is a raw MarktGuru offer. Advertisers and ValidityDates are
// parallel lists.
type Offer struct {
	ID             int64    `json:"id"`
	Price          float64  `json:"price"`
	ReferencePrice *float64 `json:"referencePrice"`
	Description    string   `json:"description"`
	Brand          struct {
		Name string `json:"name"`
	} `json:"brand"`
	Product struct {
		Name string `json:"name"`
	} `json:"product"`
	Unit struct {
		ShortName string `json:"shortName"`
	} `json:"unit"`
	Advertisers               []named    `json:"advertisers"`
	Categories                []named    `json:"categories"`
	ValidityDates             []validity `json:"validityDates"`
	RequiresLoyaltyMembership bool       `json:"requiresLoyalityMembership"`
}

type named struct {
	Name string `json:"name"`
}

type validity struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GetAllOffers pages through every offer available for the zip code
func (c *Client) GetAllOffers(ctx context.Context) ([]Offer, error) {
	c.logger.Info("getting all offers", zap.String("zip_code", c.zipCode))

	var all []Offer
	for offset := 0; ; offset += c.pageSize {
		page, err := c.getOffersPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if len(page.Results) == 0 || len(all) >= page.TotalResults {
			break
		}
	}
	return all, nil
}

func (c *Client) getOffersPage(ctx context.Context, offset int) (*offersPage, error) {
	c.logger.Debug("getting offers page", zap.Int("offset", offset), zap.Int("limit", c.pageSize))
	query := url.Values{
		"as":      {"web"},
		"limit":   {strconv.Itoa(c.pageSize)},
		"offset":  {strconv.Itoa(offset)},
		"zipCode": {c.zipCode},
	}
	var page offersPage
	if err := c.http.GetJSON(ctx, "/api/v1/offers", query, &page); err != nil {
		return nil, fmt.Errorf("get offers at offset %d: %w", offset, err)
	}
	return &page, nil
}
