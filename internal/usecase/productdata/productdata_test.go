package productdata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantrylens/backend/internal/domain"
	"github.com/pantrylens/backend/internal/infrastructure/cache"
	"github.com/pantrylens/backend/internal/usecase/quantity"
)

// mockSource returns fixed data after an optional delay
type mockSource struct {
	name  string
	data  func(key domain.ProductKey) domain.ProductData
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (m *mockSource) Info() domain.SourceInfo { return domain.SourceInfo{Name: m.name} }

func (m *mockSource) GetData(ctx context.Context, key domain.ProductKey) (domain.ProductData, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return domain.ProductData{}, ctx.Err()
		}
	}
	if m.err != nil {
		return domain.ProductData{}, m.err
	}
	if m.data == nil {
		return domain.ProductData{}, nil
	}
	return m.data(key), nil
}

func nameSource(name, value string) *mockSource {
	return &mockSource{
		name: name,
		data: func(key domain.ProductKey) domain.ProductData {
			return NewBuilder(domain.SourceInfo{Name: name}, key).Name(value).Data()
		},
	}
}

func TestComposite_MergesNameAndQuantity(t *testing.T) {
	parser := quantity.NewParser(nil)
	a := nameSource("a", "Milk")
	b := &mockSource{
		name: "b",
		data: func(key domain.ProductKey) domain.ProductData {
			q, err := parser.Parse("1 L")
			require.NoError(t, err)
			return NewBuilder(domain.SourceInfo{Name: "b"}, key).Quantity(q).Data()
		},
	}

	composite := NewComposite(nil, a, b)
	data, err := composite.GetData(context.Background(), domain.BarcodeKey("123"))
	require.NoError(t, err)

	require.Len(t, data.Name, 1)
	assert.Equal(t, "Milk", data.Name[0].Value)
	assert.Equal(t, "a", data.Name[0].Source.Name)
	require.Len(t, data.QuantityAmount, 1)
	assert.Equal(t, 1000.0, data.QuantityAmount[0].Value)
	assert.Equal(t, "milliliter", data.Unit[0].Value)
	assert.Equal(t, domain.BarcodeKey("123"), data.QuantityAmount[0].ProductKey)
}

func TestComposite_KeepsRegistrationOrder(t *testing.T) {
	slow := nameSource("slow", "First")
	slow.delay = 20 * time.Millisecond
	fast := nameSource("fast", "Second")

	composite := NewComposite(nil, slow)
	composite.Add(fast)

	data, err := composite.GetData(context.Background(), domain.BarcodeKey("1"))
	require.NoError(t, err)
	require.Len(t, data.Name, 2)
	assert.Equal(t, "First", data.Name[0].Value)
	assert.Equal(t, "Second", data.Name[1].Value)
}

func TestComposite_SourceFaultIsFatal(t *testing.T) {
	cause := errors.New("connection reset")
	good := nameSource("good", "Milk")
	bad := &mockSource{name: "bad", err: cause}

	composite := NewComposite(nil, good, bad)
	key := domain.BarcodeKey("4006381333931")
	data, err := composite.GetData(context.Background(), key)

	require.Error(t, err)
	assert.True(t, data.IsEmpty())
	assert.ErrorIs(t, err, domain.ErrSourceFault)
	assert.ErrorIs(t, err, cause)

	var srcErr *domain.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "bad", srcErr.Source)
	assert.Equal(t, key, srcErr.Key)
}

func TestComposite_NestedFaultIsNotWrappedTwice(t *testing.T) {
	inner := NewComposite(nil, &mockSource{name: "leaf", err: errors.New("boom")})
	outer := NewComposite(nil, inner)

	_, err := outer.GetData(context.Background(), domain.BarcodeKey("1"))
	var srcErr *domain.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "leaf", srcErr.Source)
	assert.Equal(t, `source "leaf" failed for BARCODE:1: boom`, err.Error())
}

func TestComposite_EmptyDataIsNotAnError(t *testing.T) {
	composite := NewComposite(nil, &mockSource{name: "empty"}, &mockSource{name: "empty2"})
	data, err := composite.GetData(context.Background(), domain.BarcodeKey("1"))
	require.NoError(t, err)
	assert.True(t, data.IsEmpty())
}

func TestCached_MemoisesPerKey(t *testing.T) {
	mc := cache.NewMemoryCache(0)
	defer mc.Close()
	src := nameSource("off", "Milk")
	cached := NewCached(src, mc, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := cached.GetData(ctx, domain.BarcodeKey("1"))
		require.NoError(t, err)
		assert.Equal(t, "Milk", data.Name[0].Value)
	}
	_, err := cached.GetData(ctx, domain.BarcodeKey("2"))
	require.NoError(t, err)

	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, "off", cached.Info().Name)
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	mc := cache.NewMemoryCache(0)
	defer mc.Close()
	src := &mockSource{name: "flaky", err: errors.New("timeout")}
	cached := NewCached(src, mc, time.Minute, nil)

	_, err := cached.GetData(context.Background(), domain.BarcodeKey("1"))
	require.Error(t, err)
	_, err = cached.GetData(context.Background(), domain.BarcodeKey("1"))
	require.Error(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestBuilder(t *testing.T) {
	key := domain.BarcodeKey("1")
	data := NewBuilder(domain.SourceInfo{Name: "s"}, key).
		Barcode("1").
		Name("").
		ImageURL("http://img").
		Quantity(domain.Quantity{Amount: 0, Unit: "gram"}).
		ServingSize(domain.Quantity{Amount: 30, Unit: "gram"}).
		EnergyPer100(250).
		Data()

	assert.Len(t, data.Barcode, 1)
	assert.False(t, data.HasName())
	assert.False(t, data.HasQuantityAmount(), "zero amounts are not facts")
	assert.Equal(t, 30.0, data.ServingSize[0].Value)
	assert.Equal(t, 2.5, data.EnergyKcal[0].Value)
	assert.Equal(t, domain.FieldEnergyKcal, data.EnergyKcal[0].FieldName)
}
