package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/docstore"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	docstore.Store
	gets atomic.Int32
	err  error
}

func (c *countingStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	c.gets.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	time.Sleep(5 * time.Millisecond)
	return c.Store.Get(ctx, collection, id)
}

func seed(t *testing.T) *docstore.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := docstore.NewMemoryStore()
	_, err := s.Create(ctx, ProductsCollection, "p1", map[string]any{
		"title": "Icon Pack", "price": 12.5, "category": "design", "mainFileId": "files/icons.zip", "approved": true,
	})
	require.NoError(t, err)
	_, err = s.Create(ctx, ProductsCollection, "p2", map[string]any{
		"title": "Draft", "price": int64(3), "approved": false,
	})
	require.NoError(t, err)
	return s
}

func setupCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func TestGetProduct(t *testing.T) {
	svc := NewService(seed(t), nil)

	p, err := svc.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Icon Pack", p.Title)
	assert.Equal(t, "12.5", p.UnitPrice.String())
	assert.Equal(t, "files/icons.zip", p.MainFileID)
	assert.True(t, p.HasFile())

	_, err = svc.GetProduct(context.Background(), "p2")
	assert.ErrorIs(t, err, ErrProductNotApproved)

	_, err = svc.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.GetProduct(context.Background(), "")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestGetProduct_StoreError(t *testing.T) {
	store := &countingStore{Store: seed(t), err: errors.New("unavailable")}
	_, err := NewService(store, nil).GetProduct(context.Background(), "p1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProductNotFound)
}

func TestGetProduct_PopulatesCache(t *testing.T) {
	cache, mr := setupCache(t)
	store := &countingStore{Store: seed(t)}
	svc := NewService(store, cache)

	_, err := svc.GetProduct(context.Background(), "p1")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return mr.Exists("product:p1") }, time.Second, 10*time.Millisecond)

	p, err := svc.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Icon Pack", p.Title)
	assert.Equal(t, int32(1), store.gets.Load())

	ttl := mr.TTL("product:p1")
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 15*time.Minute)

	svc.Invalidate(context.Background(), "p1")
	assert.False(t, mr.Exists("product:p1"))
}

func TestGetProduct_CollapsesConcurrentMisses(t *testing.T) {
	store := &countingStore{Store: seed(t)}
	svc := NewService(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetProduct(context.Background(), "p1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, store.gets.Load(), int32(20))
}

func TestGetProduct_CachedUnapprovedStillRejected(t *testing.T) {
	cache, _ := setupCache(t)
	require.NoError(t, cache.Set(context.Background(), &domain.Product{ID: "p9", Title: "Hidden"}))

	_, err := NewService(docstore.NewMemoryStore(), cache).GetProduct(context.Background(), "p9")
	assert.ErrorIs(t, err, ErrProductNotApproved)
}

func TestRedisCache_MissAndCorrupt(t *testing.T) {
	cache, mr := setupCache(t)

	_, err := cache.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, mr.Set("product:bad", "{not json"))
	_, err = cache.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestWatch_InvalidatesChangedProducts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := seed(t)
	cache, mr := setupCache(t)
	svc := NewService(store, cache)

	require.NoError(t, cache.Set(ctx, &domain.Product{ID: "p1", Title: "Icon Pack", Approved: true}))
	require.NoError(t, cache.Set(ctx, &domain.Product{ID: "p2", Title: "Draft"}))

	stop, err := svc.Watch(ctx)
	require.NoError(t, err)
	defer stop()
	assert.True(t, mr.Exists("product:p1"), "the initial snapshot invalidates nothing")

	require.NoError(t, store.Update(ctx, ProductsCollection, "p1", map[string]any{"price": 20.0}))

	assert.False(t, mr.Exists("product:p1"))
	assert.True(t, mr.Exists("product:p2"))

	p, err := svc.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "20", p.UnitPrice.String())
}

func TestWatch_StopEndsInvalidation(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	cache, mr := setupCache(t)
	svc := NewService(store, cache)

	stop, err := svc.Watch(ctx)
	require.NoError(t, err)
	stop()

	require.NoError(t, cache.Set(ctx, &domain.Product{ID: "p1", Title: "Icon Pack", Approved: true}))
	require.NoError(t, store.Update(ctx, ProductsCollection, "p1", map[string]any{"price": 20.0}))
	assert.True(t, mr.Exists("product:p1"))
}
