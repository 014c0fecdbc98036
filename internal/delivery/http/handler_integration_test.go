package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantrylens/backend/config"
	"github.com/pantrylens/backend/internal/domain"
	"github.com/pantrylens/backend/internal/usecase/ingredient"
	"github.com/pantrylens/backend/internal/usecase/offers"
	"github.com/pantrylens/backend/internal/usecase/planner"
	"github.com/pantrylens/backend/internal/usecase/quantity"
	"github.com/pantrylens/backend/internal/usecase/reconcile"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var fixedNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.Local)

type mockOffers struct {
	lastQuery  offers.Query
	lastStores []string
	lastDay    time.Time
	offer      *domain.Offer
	err        error
}

func (m *mockOffers) BestOffer(ctx context.Context, q offers.Query) (*domain.Offer, bool, error) {
	m.lastQuery = q
	if m.err != nil {
		return nil, false, m.err
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, false, fmt.Errorf("%w: empty offer query", domain.ErrInvalidRequest)
	}
	return m.offer, m.offer != nil, nil
}

func (m *mockOffers) UpdateOffers(ctx context.Context, stores []string, day time.Time) (offers.UpdateResult, error) {
	m.lastStores, m.lastDay = stores, day
	return offers.UpdateResult{Products: 3, WithOffer: 2, Updated: 1}, m.err
}

type mockShoppingList struct {
	err error
}

func (m *mockShoppingList) Generate(ctx context.Context) (planner.Result, error) {
	return planner.Result{Products: 4, Added: 2, Skipped: 1, NoAction: 1}, m.err
}

func (m *mockShoppingList) UpdateNotes(ctx context.Context) (int, error) { return 3, m.err }

func (m *mockShoppingList) ClearNotes(ctx context.Context) (int, error) { return 5, m.err }

type mockForecast struct {
	lastEnd time.Time
}

func (m *mockForecast) Forecast(ctx context.Context, productID int, end time.Time) (float64, error) {
	m.lastEnd = end
	if productID != 1 {
		return 0, fmt.Errorf("product %d: %w", productID, domain.ErrModelNotFound)
	}
	return 12.5, nil
}

type mockProductData struct {
	err error
}

func (m *mockProductData) Info() domain.SourceInfo { return domain.SourceInfo{Name: "mock"} }

func (m *mockProductData) GetData(ctx context.Context, key domain.ProductKey) (domain.ProductData, error) {
	if m.err != nil {
		return domain.ProductData{}, &domain.SourceError{Source: "mock", Key: key, Err: m.err}
	}
	if key.Key != "4000417025005" {
		return domain.ProductData{}, nil
	}
	info := m.Info()
	return domain.ProductData{
		Name: []domain.ProductDataEntry[string]{domain.NewEntry(info, key, domain.FieldName, "Vollmilch 3,5%")},
	}, nil
}

type stubCatalogIndex struct{}

func (stubCatalogIndex) QueryProduct(text string) (domain.Product, bool) {
	if text != "Mehl" {
		return domain.Product{}, false
	}
	return domain.Product{ID: 1, Name: "Flour / Mehl", StockUnitID: 2}, true
}

func (stubCatalogIndex) QueryUnit(text string) (domain.Unit, bool) {
	if text != "gram" {
		return domain.Unit{}, false
	}
	return domain.Unit{ID: 2, Name: "gram"}, true
}

type mockReconciler struct {
	calls int
	err   error
}

func (m *mockReconciler) ReconcileAll(ctx context.Context) (reconcile.Result, error) {
	m.calls++
	return reconcile.Result{Products: 2, Barcodes: 5, Updated: 3, Unchanged: 1, Failed: 1}, m.err
}

type testAPI struct {
	router     *gin.Engine
	offers     *mockOffers
	list       *mockShoppingList
	forecast   *mockForecast
	data       *mockProductData
	reconciler *mockReconciler
}

func setupTestRouter(t *testing.T) *testAPI {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:*"},
		},
	}
	api := &testAPI{
		offers:     &mockOffers{},
		list:       &mockShoppingList{},
		forecast:   &mockForecast{},
		data:       &mockProductData{},
		reconciler: &mockReconciler{},
	}
	parser := quantity.NewParser(nil)
	handler := NewHandler(Dependencies{
		Offers:       api.offers,
		ShoppingList: api.list,
		Forecast:     api.forecast,
		ProductData:  api.data,
		Quantity:     parser,
		Ingredients:  ingredient.NewMatcher(stubCatalogIndex{}, nil, parser, 1, nil),
		Reconciler:   api.reconciler,
	})
	handler.now = func() time.Time { return fixedNow }
	api.router = SetupRouter(cfg, handler, nil)
	return api
}

func (api *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthCheckEndpoint(t *testing.T) {
	api := setupTestRouter(t)

	w := api.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "pantrylens-backend", body["service"])

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		assert.Equal(t, http.StatusNotFound, api.do(method, "/health", "").Code, method)
	}
}

func TestParseQuantityEndpoint(t *testing.T) {
	api := setupTestRouter(t)

	w := api.do(http.MethodPost, "/api/v1/quantity/parse", `{"text":"2 x 500 g"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"amount":1000,"unit":"gram"}`, w.Body.String())

	w = api.do(http.MethodPost, "/api/v1/quantity/parse", `{"text":"-1 l"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = api.do(http.MethodPost, "/api/v1/quantity/parse", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBestOfferEndpoint(t *testing.T) {
	api := setupTestRouter(t)
	api.offers.offer = &domain.Offer{ID: "1", ProductName: "Milch", StoreName: "REWE", Price: 1.29}

	w := api.do(http.MethodGet, "/api/v1/offers/best?q=milch&brands=Landliebe,+Weihenstephan&stores=REWE&date=2024-03-05", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Milch", decode(t, w)["productName"])

	q := api.offers.lastQuery
	assert.Equal(t, "milch", q.Text)
	assert.Equal(t, []string{"Landliebe", "Weihenstephan"}, q.PreferredBrands)
	assert.Equal(t, []string{"REWE"}, q.Stores)
	assert.Nil(t, q.BannedBrands)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.Local), q.Day)

	api.offers.offer = nil
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/v1/offers/best?q=milch", "").Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/offers/best", "").Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/offers/best?q=milch&date=05.03.2024", "").Code)

	api.offers.err = fmt.Errorf("search: %w", domain.ErrOfferAPIFailure)
	assert.Equal(t, http.StatusBadGateway, api.do(http.MethodGet, "/api/v1/offers/best?q=milch", "").Code)
}

func TestRefreshOffersEndpoint(t *testing.T) {
	api := setupTestRouter(t)

	w := api.do(http.MethodPost, "/api/v1/offers/refresh", `{"stores":["REWE","Aldi"],"date":"2024-03-06"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"products":3,"withOffer":2,"updated":1,"cleared":0}`, w.Body.String())
	assert.Equal(t, []string{"REWE", "Aldi"}, api.offers.lastStores)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.Local), api.offers.lastDay)

	w = api.do(http.MethodPost, "/api/v1/offers/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, api.offers.lastStores)
	assert.Equal(t, fixedNow, api.offers.lastDay)
}

func TestShoppingListEndpoints(t *testing.T) {
	api := setupTestRouter(t)

	w := api.do(http.MethodPost, "/api/v1/shopping-list/generate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"products":4,"added":2,"skipped":1,"noAction":1,"failed":0}`, w.Body.String())

	w = api.do(http.MethodPost, "/api/v1/shopping-list/notes", "")
	assert.JSONEq(t, `{"updated":3}`, w.Body.String())
	w = api.do(http.MethodDelete, "/api/v1/shopping-list/notes", "")
	assert.JSONEq(t, `{"updated":5}`, w.Body.String())

	api.list.err = fmt.Errorf("clear list: %w", domain.ErrCatalogAPIFailure)
	assert.Equal(t, http.StatusBadGateway, api.do(http.MethodPost, "/api/v1/shopping-list/generate", "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/v1/shopping-list/generate", "").Code)
}

func TestForecastEndpoint(t *testing.T) {
	api := setupTestRouter(t)

	w := api.do(http.MethodGet, "/api/v1/forecast/1?days=14", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"productId":1,"days":14,"amount":12.5}`, w.Body.String())
	assert.Equal(t, fixedNow.AddDate(0, 0, 14), api.forecast.lastEnd)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/v1/forecast/2", "").Code)
	assert.Equal(t, fixedNow.AddDate(0, 0, 7), api.forecast.lastEnd)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/forecast/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/forecast/1?days=0", "").Code)
}

func TestProductDataEndpoint(t *testing.T) {
	api := setupTestRouter(t)

	w := api.do(http.MethodGet, "/api/v1/products/data/4000417025005", "")
	require.Equal(t, http.StatusOK, w.Code)
	names := decode(t, w)["name"].([]any)
	require.Len(t, names, 1)
	assert.Equal(t, "Vollmilch 3,5%", names[0].(map[string]any)["value"])

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/v1/products/data/123", "").Code)

	api.data.err = errors.New("connection reset")
	w = api.do(http.MethodGet, "/api/v1/products/data/4000417025005", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode(t, w)["error"], "connection reset")
}

func TestMatchProductsEndpoint(t *testing.T) {
	api := setupTestRouter(t)

	w := api.do(http.MethodPost, "/api/v1/products/match", `{"ingredients":["500 g Mehl, gesiebt","1 l Buttermilch"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Matches []ingredient.Match `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Matches, 2)

	flour := body.Matches[0]
	assert.Equal(t, "Mehl", flour.Name)
	assert.Equal(t, "gesiebt", flour.Note)
	require.NotNil(t, flour.Product)
	assert.Equal(t, 1, flour.Product.ID)
	require.NotNil(t, flour.Unit)
	assert.Equal(t, "gram", flour.Unit.Name)
	assert.Equal(t, 500.0, *flour.Amount)

	buttermilk := body.Matches[1]
	assert.Nil(t, buttermilk.Product)
	assert.Nil(t, buttermilk.Unit)
	assert.Equal(t, 1000.0, *buttermilk.Amount)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/v1/products/match", `{"ingredients":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/v1/products/match", `{"ingredients":["500 g"]}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/api/v1/products/match", `{"ingredients":["1/0 g Mehl"]}`).Code)
}

func TestReconcileProductsEndpoint(t *testing.T) {
	api := setupTestRouter(t)

	w := api.do(http.MethodPost, "/api/v1/products/reconcile", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"products":2,"barcodes":5,"updated":3,"unchanged":1,"failed":1}`, w.Body.String())
	assert.Equal(t, 1, api.reconciler.calls)

	api.reconciler.err = fmt.Errorf("list products: %w", domain.ErrCatalogAPIFailure)
	assert.Equal(t, http.StatusBadGateway, api.do(http.MethodPost, "/api/v1/products/reconcile", "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/v1/products/reconcile", "").Code)
}

func TestUnconfiguredServices(t *testing.T) {
	router := SetupRouter(&config.Config{}, NewHandler(Dependencies{}), nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/offers/best?q=milch"},
		{http.MethodPost, "/api/v1/shopping-list/generate"},
		{http.MethodGet, "/api/v1/forecast/1"},
		{http.MethodGet, "/api/v1/products/data/4000417025005"},
		{http.MethodPost, "/api/v1/quantity/parse"},
		{http.MethodPost, "/api/v1/products/match"},
		{http.MethodPost, "/api/v1/products/reconcile"},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusNotImplemented, w.Code, tc.path)
		assert.Contains(t, w.Body.String(), "not configured")
	}
}

func TestCORSIntegration(t *testing.T) {
	api := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/shopping-list/generate", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
