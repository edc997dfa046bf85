package cart

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/internal/kvstore"
	"github.com/medcare-vn/medcare-mobile/internal/observability/metrics"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

type fixedCustomer struct {
	id  int64
	err error
}

func (f *fixedCustomer) CustomerID(context.Context) (int64, error) {
	return f.id, f.err
}

func newTestStore(t *testing.T) (*Store, *fixedCustomer, kvstore.Store) {
	t.Helper()
	kv, err := kvstore.NewFileStore(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	customer := &fixedCustomer{id: 7}
	return NewStore(kv, customer, nil, logging.Discard()), customer, kv
}

func drug(id int64, price api.Money, stock int) api.Product {
	return api.Product{ID: id, Type: api.ProductDrug, Name: fmt.Sprintf("drug-%d", id), Price: price, Stock: stock}
}

func TestAddOrMerge_MergesSameProduct(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	p := drug(5, 25000, 10)

	line, err := store.AddOrMerge(ctx, p, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, line.Quantity)

	line, err = store.AddOrMerge(ctx, p, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, line.Quantity)

	items, err := store.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, api.ProductDrug, items[0].Type)
}

func TestAddOrMerge_SameIDDifferentTypeIsSeparate(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddOrMerge(ctx, drug(5, 1000, 10), 1)
	require.NoError(t, err)
	_, err = store.AddOrMerge(ctx, api.Product{ID: 5, Type: api.ProductDevice, Name: "máy đo", Price: 2000, Stock: 4}, 2)
	require.NoError(t, err)

	items, err := store.Items(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	total, err := store.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.Money(5000), total)
}

func TestAddOrMerge_RejectsOverflowAndKeepsState(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	p := drug(5, 25000, 6)

	_, err := store.AddOrMerge(ctx, p, 4)
	require.NoError(t, err)

	_, err = store.AddOrMerge(ctx, p, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExceedsStock)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 6, capErr.Stock)
	assert.Equal(t, 4, capErr.InCart)
	assert.Contains(t, capErr.Error(), "only 6")

	items, err := store.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, items[0].Quantity, "rejected call must not change the cart")
}

func TestAddOrMerge_SumPropertyNeverExceedsStock(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 50; iter++ {
		store, _, _ := newTestStore(t)
		ctx := context.Background()
		stock := rng.Intn(20) + 1
		p := drug(1, 100, stock)

		expected := 0
		for call := 0; call < 10; call++ {
			qty := rng.Intn(6) + 1
			_, err := store.AddOrMerge(ctx, p, qty)
			if expected+qty > stock {
				require.ErrorIs(t, err, ErrExceedsStock)
				continue
			}
			require.NoError(t, err)
			expected += qty
		}

		items, err := store.Items(ctx)
		require.NoError(t, err)
		if expected == 0 {
			assert.Empty(t, items)
			continue
		}
		require.Len(t, items, 1)
		assert.Equal(t, expected, items[0].Quantity)
		assert.LessOrEqual(t, items[0].Quantity, stock)
	}
}

func TestAddOrMerge_InvalidInput(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddOrMerge(ctx, drug(1, 100, 5), 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = store.AddOrMerge(ctx, api.Product{ID: 1, Type: "vaccine", Stock: 5}, 1)
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = store.AddOrMerge(ctx, drug(2, 100, 0), 1)
	assert.ErrorIs(t, err, ErrExceedsStock, "nothing in stock")
}

func TestSetQuantity_ClampsAndIsIdempotent(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.AddOrMerge(ctx, drug(5, 100, 8), 2)
	require.NoError(t, err)

	tests := []struct {
		in, want int
	}{
		{4, 4},
		{0, 1},
		{-3, 1},
		{99, 8},
	}
	for _, tt := range tests {
		first, err := store.SetQuantity(ctx, 5, api.ProductDrug, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, first.Quantity, "set %d", tt.in)

		before, err := store.Items(ctx)
		require.NoError(t, err)
		_, err = store.SetQuantity(ctx, 5, api.ProductDrug, tt.in)
		require.NoError(t, err)
		after, err := store.Items(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after, "second call with %d must not change state", tt.in)
	}

	_, err = store.SetQuantity(ctx, 99, api.ProductDrug, 1)
	assert.ErrorIs(t, err, ErrLineNotFound)
}

func TestRemoveAndClear(t *testing.T) {
	store, _, kv := newTestStore(t)
	ctx := context.Background()
	_, err := store.AddOrMerge(ctx, drug(1, 100, 5), 1)
	require.NoError(t, err)
	_, err = store.AddOrMerge(ctx, drug(2, 200, 5), 1)
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, 1, api.ProductDrug))
	require.NoError(t, store.Remove(ctx, 1, api.ProductDrug), "removing a missing line is a no-op")
	items, err := store.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].ProductID)

	require.NoError(t, store.Clear(ctx))
	_, err = kv.Get(ctx, Key(7))
	assert.ErrorIs(t, err, kvstore.ErrNotFound, "clear removes the whole record")
	total, err := store.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.Money(0), total)
}

func TestCartIsScopedPerCustomer(t *testing.T) {
	store, customer, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.AddOrMerge(ctx, drug(1, 100, 5), 3)
	require.NoError(t, err)

	customer.id = 8
	items, err := store.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSessionExpiredIsHardFailure(t *testing.T) {
	store, customer, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.AddOrMerge(ctx, drug(1, 100, 5), 1)
	require.NoError(t, err)

	customer.err = api.ErrUnauthorized
	_, err = store.AddOrMerge(ctx, drug(1, 100, 5), 1)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = store.SetQuantity(ctx, 1, api.ProductDrug, 2)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.ErrorIs(t, store.Remove(ctx, 1, api.ProductDrug), ErrSessionExpired)
	assert.ErrorIs(t, store.Clear(ctx), ErrSessionExpired)
	_, err = store.Items(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = store.Total(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)

	customer.err = nil
	items, err := store.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, items[0].Quantity, "failed calls left the cart untouched")
}

func TestTotalPure(t *testing.T) {
	lines := []Line{
		{ProductID: 1, Type: api.ProductDrug, Quantity: 2, Price: 25000},
		{ProductID: 2, Type: api.ProductDevice, Quantity: 1, Price: 150000},
	}
	assert.Equal(t, api.Money(200000), Total(lines))
	assert.Equal(t, api.Money(0), Total(nil))
}

func TestRejectionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	kv, err := kvstore.NewFileStore(filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)
	store := NewStore(kv, &fixedCustomer{id: 1}, metrics.NewCartMetrics(reg), logging.Discard())

	_, err = store.AddOrMerge(context.Background(), drug(1, 10, 1), 2)
	require.ErrorIs(t, err, ErrExceedsStock)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, 1.0, families[0].GetMetric()[0].GetCounter().GetValue())
}

func TestStoreOnRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewStore(kvstore.NewRedisStore(client, "medcare:"), &fixedCustomer{id: 3}, nil, logging.Discard())
	ctx := context.Background()
	_, err = store.AddOrMerge(ctx, drug(5, 25000, 10), 2)
	require.NoError(t, err)
	assert.True(t, mr.Exists("medcare:cart_3"))
}

type fakeCatalog map[int64]*api.Product

func (f fakeCatalog) GetProduct(_ context.Context, _ api.ProductType, id int64) (*api.Product, error) {
	p, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("get product: %w", api.ErrNotFound)
	}
	if p == nil {
		return nil, errors.New("backend down")
	}
	return p, nil
}

func TestRevalidate(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.AddOrMerge(ctx, drug(1, 100, 10), 5)
	require.NoError(t, err)
	_, err = store.AddOrMerge(ctx, drug(2, 200, 10), 1)
	require.NoError(t, err)
	_, err = store.AddOrMerge(ctx, drug(3, 300, 10), 1)
	require.NoError(t, err)
	_, err = store.AddOrMerge(ctx, drug(4, 400, 10), 1)
	require.NoError(t, err)

	catalog := fakeCatalog{
		1: {ID: 1, Type: api.ProductDrug, Name: "drug-1", Price: 100, Stock: 3},
		2: {ID: 2, Type: api.ProductDrug, Name: "drug-2", Price: 250, Stock: 10},
		3: {ID: 3, Type: api.ProductDrug, Name: "drug-3", Price: 300, Stock: 10},
	}

	lines, found, err := store.Revalidate(ctx, catalog)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.True(t, found[0].OutOfStock())
	assert.False(t, found[0].PriceChanged())
	assert.True(t, found[1].PriceChanged())
	assert.True(t, found[2].Missing)
	assert.Contains(t, found[2].String(), "no longer sold")

	require.Len(t, lines, 3, "the line no longer sold is dropped")
	assert.Equal(t, api.Money(250), lines[1].Price, "snapshots are refreshed")
	items, err := store.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 3, items[0].Stock)
	assert.Equal(t, 3, items[0].Quantity, "quantity is lowered to the live stock")

	catalog[3] = nil
	_, _, err = store.Revalidate(ctx, catalog)
	require.Error(t, err)
}

func TestRevalidate_SoldOutLineNeverExceedsStock(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.AddOrMerge(ctx, drug(5, 100, 10), 3)
	require.NoError(t, err)
	_, err = store.AddOrMerge(ctx, drug(6, 100, 10), 4)
	require.NoError(t, err)

	lines, found, err := store.Revalidate(ctx, fakeCatalog{
		5: {ID: 5, Type: api.ProductDrug, Name: "drug-5", Price: 100, Stock: 0},
		6: {ID: 6, Type: api.ProductDrug, Name: "drug-6", Price: 100, Stock: 2},
	})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.True(t, found[0].OutOfStock())
	assert.Equal(t, 0, found[0].LiveStock)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(6), lines[0].ProductID)

	items, err := store.Items(ctx)
	require.NoError(t, err)
	for _, l := range items {
		assert.LessOrEqual(t, l.Quantity, l.Stock, "line %d", l.ProductID)
	}

	_, err = store.SetQuantity(ctx, 5, api.ProductDrug, 1)
	assert.ErrorIs(t, err, ErrLineNotFound, "sold-out line was dropped")

	line, err := store.SetQuantity(ctx, 6, api.ProductDrug, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, line.Quantity)
}

func TestSetQuantity_SoldOutSnapshotRemovesLine(t *testing.T) {
	store, _, kv := newTestStore(t)
	ctx := context.Background()
	raw := []byte(`[{"id":5,"type":"thuoc","quantity":1,"name":"drug-5","donGia":100,"soLuong":0}]`)
	require.NoError(t, kv.Set(ctx, Key(7), raw))

	_, err := store.SetQuantity(ctx, 5, api.ProductDrug, 1)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.ErrorIs(t, err, ErrExceedsStock)
	assert.Equal(t, 0, capErr.Stock)

	items, err := store.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
