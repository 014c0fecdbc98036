package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantrylens/backend/internal/domain"
)

var (
	created = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	now     = time.Date(2024, 1, 11, 18, 0, 0, 0, time.UTC)
)

func consume(productID int, amount float64, at time.Time) domain.ConsumptionEvent {
	return domain.ConsumptionEvent{ProductID: productID, Amount: -amount, Timestamp: at}
}

func TestBuildSeries(t *testing.T) {
	events := []domain.ConsumptionEvent{
		consume(1, 2, created.Add(26*time.Hour)),
		consume(1, 1, created.Add(30*time.Hour)),
		consume(2, 5, created.Add(30*time.Hour)),
		{ProductID: 1, Amount: -4, Undone: true, Timestamp: created.Add(50 * time.Hour)},
		{ProductID: 1, Amount: -4, Spoiled: true, Timestamp: created.Add(50 * time.Hour)},
		{ProductID: 1, Amount: 6, Timestamp: created.Add(50 * time.Hour)},
		consume(1, 1, created.Add(75*time.Hour)),
	}

	s := BuildSeries(events, 1, created, now)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), s.Start)
	require.Len(t, s.Values, 11, "anchored at creation and now")
	assert.Equal(t, []float64{0, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4}, s.Values)

	for i := 1; i < len(s.Values); i++ {
		assert.GreaterOrEqual(t, s.Values[i], s.Values[i-1])
	}
}

func TestBuildSeries_Degenerate(t *testing.T) {
	s := BuildSeries(nil, 1, created, now)
	require.Len(t, s.Values, 11)
	assert.Equal(t, 0.0, s.Values[0])
	assert.Equal(t, degenerateValue, s.Values[10])
}

func TestBuildSeries_EventsBeforeCreation(t *testing.T) {
	events := []domain.ConsumptionEvent{consume(1, 1, created.Add(-48*time.Hour))}
	s := BuildSeries(events, 1, created, now)
	assert.Equal(t, time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC), s.Start)
	assert.Equal(t, 1.0, s.Values[0])
}

func linearSeries(days int, perDay float64) Series {
	values := make([]float64, days)
	for i := range values {
		values[i] = float64(i) * perDay
	}
	return Series{Start: day(created), Values: values}
}

func TestFit_LinearDrift(t *testing.T) {
	m, err := Fit(linearSeries(20, 1.5))
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Phi)
	assert.Equal(t, 0.0, m.Theta)
	assert.InDelta(t, 1.5, m.Drift, 1e-9)

	assert.Equal(t, 28.5, m.At(19), "observed value inside the span")
	assert.InDelta(t, 28.5+15, m.At(29), 1e-9)
}

func TestFit_TooShort(t *testing.T) {
	_, err := Fit(Series{Start: created, Values: []float64{1}})
	assert.ErrorIs(t, err, domain.ErrForecastFault)
}

func TestModel_ProjectionIsMonotonic(t *testing.T) {
	s := Series{Start: day(created), Values: []float64{0, 5, 5, 5, 9, 9, 12, 12, 12, 12, 20, 20}}
	m, err := Fit(s)
	require.NoError(t, err)

	prev := m.At(len(s.Values) - 1)
	for d := len(s.Values); d < len(s.Values)+60; d++ {
		v := m.At(d)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestModel_MarshalRoundTrip(t *testing.T) {
	m, err := Fit(linearSeries(5, 1))
	require.NoError(t, err)
	data, err := m.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, m.At(40), restored.At(40))

	_, err = Unmarshal([]byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrForecastFault)
}

type mockCatalog struct {
	products []domain.Product
	events   []domain.ConsumptionEvent
	err      error
}

func (m *mockCatalog) GetProducts(ctx context.Context) ([]domain.Product, error) {
	return m.products, m.err
}

func (m *mockCatalog) GetConsumptionLog(ctx context.Context) ([]domain.ConsumptionEvent, error) {
	return m.events, nil
}

func TestForecaster_TrainAndForecast(t *testing.T) {
	var events []domain.ConsumptionEvent
	for i := 1; i <= 10; i++ {
		events = append(events, consume(1, 2, created.Add(time.Duration(i)*24*time.Hour)))
	}
	catalog := &mockCatalog{
		products: []domain.Product{
			{ID: 1, CreatedAt: created},
			{ID: 2, CreatedAt: now},
		},
		events: events,
	}
	store := NewMemoryStore()
	f := NewForecaster(catalog, store, 2, nil)
	f.now = func() time.Time { return now }

	res, err := f.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TrainResult{Products: 2, Trained: 1, Failed: 1}, res)

	delta, err := f.Forecast(context.Background(), 1, now.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, delta, 1e-9)

	_, err = f.Forecast(context.Background(), 2, now.AddDate(0, 0, 5))
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
}

func TestForecaster_CatalogFailureAborts(t *testing.T) {
	f := NewForecaster(&mockCatalog{err: errors.New("down")}, NewMemoryStore(), 1, nil)
	_, err := f.Train(context.Background())
	assert.Error(t, err)
}

type failingStore struct{ MemoryStore }

func (s *failingStore) Save(ctx context.Context, productID int, model []byte) error {
	return errors.New("disk full")
}

func TestForecaster_StoreFailureAborts(t *testing.T) {
	catalog := &mockCatalog{products: []domain.Product{{ID: 1, CreatedAt: created}}}
	f := NewForecaster(catalog, &failingStore{}, 1, nil)
	f.now = func() time.Time { return now }
	_, err := f.Train(context.Background())
	assert.ErrorContains(t, err, "disk full")
}
