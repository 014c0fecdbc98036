package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pantrylens/backend/internal/domain"
	"github.com/pantrylens/backend/internal/usecase/ingredient"
	"github.com/pantrylens/backend/internal/usecase/offers"
	"github.com/pantrylens/backend/internal/usecase/planner"
	"github.com/pantrylens/backend/internal/usecase/reconcile"
)

const dateLayout = "2006-01-02"

// OfferService finds and records offers
type OfferService interface {
	BestOffer(ctx context.Context, q offers.Query) (*domain.Offer, bool, error)
	UpdateOffers(ctx context.Context, stores []string, day time.Time) (offers.UpdateResult, error)
}

// ShoppingListService regenerates the shopping list and its offer notes
type ShoppingListService interface {
	Generate(ctx context.Context) (planner.Result, error)
	UpdateNotes(ctx context.Context) (int, error)
	ClearNotes(ctx context.Context) (int, error)
}

// ForecastService projects consumption
type ForecastService interface {
	Forecast(ctx context.Context, productID int, end time.Time) (float64, error)
}

// QuantityParser normalizes quantity strings
type QuantityParser interface {
	Parse(text string) (domain.Quantity, error)
}

// IngredientMatcher resolves ingredient lines against the catalog
type IngredientMatcher interface {
	MatchAll(ctx context.Context, lines []string) ([]ingredient.Match, error)
}

// Reconciler backfills barcode facts on demand
type Reconciler interface {
	ReconcileAll(ctx context.Context) (reconcile.Result, error)
}

// Dependencies are the services behind the API. Nil services answer 501.
type Dependencies struct {
	Offers       OfferService
	ShoppingList ShoppingListService
	Forecast     ForecastService
	ProductData  domain.ProductDataSource
	Quantity     QuantityParser
	Ingredients  IngredientMatcher
	Reconciler   Reconciler
	Logger       *zap.Logger
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	deps   Dependencies
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deps: deps, logger: logger.Named("http"), now: time.Now}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pantrylens-backend",
		"version": "1.0.0",
	})
}

type refreshOffersRequest struct {
	Stores []string `json:"stores"`
	Date   string   `json:"date"`
}

// RefreshOffers records the best current offer on every catalog product
func (h *Handler) RefreshOffers(c *gin.Context) {
	if h.deps.Offers == nil {
		notConfigured(c, "offer service")
		return
	}
	var req refreshOffersRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	day, err := h.parseDay(req.Date)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.deps.Offers.UpdateOffers(c.Request.Context(), req.Stores, day)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// BestOffer answers ?q=&brands=&banned=&stores=&date=
func (h *Handler) BestOffer(c *gin.Context) {
	if h.deps.Offers == nil {
		notConfigured(c, "offer service")
		return
	}
	day, err := h.parseDay(c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	q := offers.Query{
		Text:            c.Query("q"),
		PreferredBrands: list(c.Query("brands")),
		BannedBrands:    list(c.Query("banned")),
		Stores:          list(c.Query("stores")),
		Day:             day,
	}

	offer, ok, err := h.deps.Offers.BestOffer(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no matching offer"})
		return
	}
	c.JSON(http.StatusOK, offer)
}

// GenerateShoppingList rebuilds the generated part of the shopping list
func (h *Handler) GenerateShoppingList(c *gin.Context) {
	if h.deps.ShoppingList == nil {
		notConfigured(c, "shopping list service")
		return
	}
	result, err := h.deps.ShoppingList.Generate(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UpdateShoppingListNotes writes offer blocks into shopping list notes
func (h *Handler) UpdateShoppingListNotes(c *gin.Context) {
	h.notes(c, func(ctx context.Context) (int, error) { return h.deps.ShoppingList.UpdateNotes(ctx) })
}

// ClearShoppingListNotes removes offer blocks from shopping list notes
func (h *Handler) ClearShoppingListNotes(c *gin.Context) {
	h.notes(c, func(ctx context.Context) (int, error) { return h.deps.ShoppingList.ClearNotes(ctx) })
}

func (h *Handler) notes(c *gin.Context, run func(ctx context.Context) (int, error)) {
	if h.deps.ShoppingList == nil {
		notConfigured(c, "shopping list service")
		return
	}
	n, err := run(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// ForecastConsumption returns the expected consumption over the next
// ?days= days (default 7)
func (h *Handler) ForecastConsumption(c *gin.Context) {
	if h.deps.Forecast == nil {
		notConfigured(c, "forecaster")
		return
	}
	productID, err := strconv.Atoi(c.Param("productId"))
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
		return
	}

	end := h.now().AddDate(0, 0, days)
	amount, err := h.deps.Forecast.Forecast(c.Request.Context(), productID, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"productId": productID, "days": days, "amount": amount})
}

// GetProductData returns the reconciled facts known for a barcode
func (h *Handler) GetProductData(c *gin.Context) {
	if h.deps.ProductData == nil {
		notConfigured(c, "product data source")
		return
	}
	barcode := strings.TrimSpace(c.Param("barcode"))
	if barcode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "barcode is required"})
		return
	}

	data, err := h.deps.ProductData.GetData(c.Request.Context(), domain.BarcodeKey(barcode))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if data.IsEmpty() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data for barcode " + barcode})
		return
	}
	c.JSON(http.StatusOK, data)
}

type matchProductsRequest struct {
	Ingredients []string `json:"ingredients" binding:"required,min=1"`
}

// MatchProducts resolves ingredient lines to catalog products, units and
// amounts
func (h *Handler) MatchProducts(c *gin.Context) {
	if h.deps.Ingredients == nil {
		notConfigured(c, "ingredient matcher")
		return
	}
	var req matchProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	matches, err := h.deps.Ingredients.MatchAll(c.Request.Context(), req.Ingredients)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// ReconcileProducts runs barcode reconciliation now and returns its counts
func (h *Handler) ReconcileProducts(c *gin.Context) {
	if h.deps.Reconciler == nil {
		notConfigured(c, "reconciler")
		return
	}
	result, err := h.deps.Reconciler.ReconcileAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type parseQuantityRequest struct {
	Text string `json:"text"`
}

// ParseQuantity normalizes a quantity string
func (h *Handler) ParseQuantity(c *gin.Context) {
	if h.deps.Quantity == nil {
		notConfigured(c, "quantity parser")
		return
	}
	var req parseQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	q, err := h.deps.Quantity.Parse(req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) parseDay(s string) (time.Time, error) {
	if s == "" {
		return h.now(), nil
	}
	day, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, errors.Join(domain.ErrInvalidRequest, err)
	}
	return day, nil
}

// respondError maps domain errors onto status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrModelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrParseFailure):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func notConfigured(c *gin.Context, what string) {
	c.JSON(http.StatusNotImplemented, gin.H{"error": what + " not configured"})
}

func list(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
