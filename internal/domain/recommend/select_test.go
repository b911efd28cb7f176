package recommend

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/loyalty-kart/internal/domain/order"
	"github.com/xenking/loyalty-kart/internal/domain/product"
	"github.com/xenking/loyalty-kart/internal/storage/memory"
)

func catalog() []product.Product {
	return []product.Product{
		{ID: "a", Category: "phones", Rating: 4.5, IsActive: true},
		{ID: "b", Category: "audio", Rating: 4.8, IsActive: true},
		{ID: "c", Category: "phones", Rating: 4.9, IsActive: true},
		{ID: "d", Category: "audio", Rating: 4.5, IsActive: true},
		{ID: "e", Category: "watches", Rating: 5.0, IsActive: false},
		{ID: "f", Category: "watches", Rating: 3.1, IsActive: true},
	}
}

func ids(ps []product.Product) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func bought(productIDs ...string) []order.Order {
	items := make([]order.LineItem, len(productIDs))
	for i, id := range productIDs {
		items[i] = order.LineItem{ProductID: id, Quantity: 1}
	}
	return []order.Order{{ID: "o1", Items: items}}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		history []order.Order
		limit   int
		want    []string
	}{
		{"no history ranks by rating", nil, 10, []string{"c", "b", "a", "d", "f"}},
		{"ties keep catalog order", nil, 4, []string{"c", "b", "a", "d"}},
		{"limit", nil, 2, []string{"c", "b"}},
		{"zero limit", nil, 0, nil},
		{"history category", bought("d"), 10, []string{"b", "d"}},
		{"two categories", bought("a", "b"), 3, []string{"c", "b", "a"}},
		{"inactive purchase still counts", bought("e"), 10, []string{"f"}},
		{"unknown products fall back", bought("zzz"), 3, []string{"c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(tt.history, catalog(), tt.limit)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSelect_Pure(t *testing.T) {
	c := catalog()
	first := Select(nil, c, 3)
	second := Select(nil, c, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, "a", c[0].ID, "catalog must not be reordered")
}

type fakeCache struct {
	entries     map[string][]string
	gens        map[string]int64
	invalidated []string
	getErr      error
}

func cacheKey(userID string, limit int) string {
	return userID + "/" + strconv.Itoa(limit)
}

func (c *fakeCache) Get(_ context.Context, userID string, limit int) ([]string, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[cacheKey(userID, limit)]
	return v, ok, nil
}

func (c *fakeCache) Generation(_ context.Context, userID string) (int64, error) {
	return c.gens[userID], nil
}

func (c *fakeCache) Set(_ context.Context, userID string, limit int, gen int64, ids []string) error {
	if c.gens[userID] != gen {
		return nil
	}
	c.entries[cacheKey(userID, limit)] = ids
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userID string) error {
	if c.gens == nil {
		c.gens = map[string]int64{}
	}
	c.gens[userID]++
	c.invalidated = append(c.invalidated, userID)
	for k := range c.entries {
		if strings.HasPrefix(k, userID+"/") {
			delete(c.entries, k)
		}
	}
	return nil
}

// settlingHistory invalidates the cache while the history is being read, as
// a settlement committing during a recommendation would.
type settlingHistory struct {
	History
	svc *Service
}

func (h *settlingHistory) ListByUser(ctx context.Context, userID string, limit int) ([]order.Order, error) {
	orders, err := h.History.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return orders, h.svc.Invalidate(ctx, &order.Order{UserID: userID})
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	for _, p := range catalog() {
		require.NoError(t, s.Products().Upsert(context.Background(), p))
	}
	return s
}

func TestService_Recommend(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	cache := &fakeCache{entries: map[string][]string{}}
	svc := NewService(s.Products(), s.Orders(), cache)

	_, err := svc.Recommend(ctx, "u1", -1)
	require.ErrorIs(t, err, ErrInvalidLimit)

	got, err := svc.Recommend(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a", "d", "f"}, ids(got))
	assert.Equal(t, ids(got), cache.entries[cacheKey("u1", DefaultLimit)])

	require.NoError(t, s.Orders().Create(ctx, &order.Order{
		ID: "o1", UserID: "u1", Items: []order.LineItem{{ProductID: "f", Quantity: 1}},
	}))

	// Stale cache entry is still served until invalidated.
	got, err = svc.Recommend(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	require.NoError(t, svc.Invalidate(ctx, &order.Order{UserID: "u1"}))
	assert.Equal(t, []string{"u1"}, cache.invalidated)
	assert.Empty(t, cache.entries)

	got, err = svc.Recommend(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, ids(got))
}

func TestService_InvalidatedWhileComputingNotCached(t *testing.T) {
	s := newStore(t)
	cache := &fakeCache{entries: map[string][]string{}}
	h := &settlingHistory{History: s.Orders()}
	svc := NewService(s.Products(), h, cache)
	h.svc = svc

	got, err := svc.Recommend(context.Background(), "u1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(got))
	assert.Empty(t, cache.entries)
	assert.Equal(t, int64(1), cache.gens["u1"])
}

func TestService_CacheFailureFallsBack(t *testing.T) {
	s := newStore(t)
	cache := &fakeCache{entries: map[string][]string{}, getErr: errors.New("redis down")}
	svc := NewService(s.Products(), s.Orders(), cache)

	got, err := svc.Recommend(context.Background(), "u1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(got))
}

func TestService_CachedInactiveProductRecomputes(t *testing.T) {
	s := newStore(t)
	cache := &fakeCache{entries: map[string][]string{cacheKey("u1", 2): {"e", "c"}}}
	svc := NewService(s.Products(), s.Orders(), cache)

	got, err := svc.Recommend(context.Background(), "u1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(got))
}

func TestService_NoCache(t *testing.T) {
	s := newStore(t)
	svc := NewService(s.Products(), s.Orders(), nil)

	got, err := svc.Recommend(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(got))
	require.NoError(t, svc.Invalidate(context.Background(), &order.Order{UserID: "u1"}))
}
