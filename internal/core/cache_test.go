package core

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/shopimport/internal/domain"
)

func seedItems(t *testing.T, src domain.ManagerSource, resource string, values ...map[string]string) []*domain.Item {
	t.Helper()
	m, err := src.Manager(resource)
	require.NoError(t, err)
	items := make([]*domain.Item, len(values))
	for i, v := range values {
		items[i] = m.Create()
		for k, val := range v {
			items[i].Set(k, val)
		}
	}
	require.NoError(t, m.Save(context.Background(), items...))
	return items
}

func newCache(t *testing.T, src domain.ManagerSource, resource string, opts ...CacheOption) *LookupCache {
	t.Helper()
	m, err := src.Manager(resource)
	require.NoError(t, err)
	return NewLookupCache(m, opts...)
}

func TestLookupCache_Memoizes(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	seeded := seedItems(t, src, "catalog", map[string]string{"code": "home"})
	cache := newCache(t, src, "catalog")

	id, err := cache.ID(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, seeded[0].ID(), id)

	id, err = cache.ID(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, seeded[0].ID(), id)
	assert.Equal(t, 1, src.Searches("catalog"))
	assert.Equal(t, 1, cache.Len())
}

func TestLookupCache_MissesAreNotMemoized(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	cache := newCache(t, src, "catalog")

	id, err := cache.ID(ctx, "sale")
	require.NoError(t, err)
	assert.Empty(t, id)

	seeded := seedItems(t, src, "catalog", map[string]string{"code": "sale"})

	id, err = cache.ID(ctx, "sale")
	require.NoError(t, err)
	assert.Equal(t, seeded[0].ID(), id, "a code created later is found")
	assert.Equal(t, 2, src.Searches("catalog"))
}

func TestLookupCache_Discriminator(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	seeded := seedItems(t, src, "attribute",
		map[string]string{"code": "red", "type": "color"},
		map[string]string{"code": "red", "type": "label"},
	)
	cache := newCache(t, src, "attribute", WithDiscriminator("attribute.type"))

	color, err := cache.ID(ctx, "red", "color")
	require.NoError(t, err)
	label, err := cache.ID(ctx, "red", "label")
	require.NoError(t, err)

	assert.Equal(t, seeded[0].ID(), color)
	assert.Equal(t, seeded[1].ID(), label)

	missing, err := cache.ID(ctx, "red", "size")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLookupCache_Condition(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	seedItems(t, src, "attribute",
		map[string]string{"code": "red", "type": "color", "domain": "media"},
	)
	seeded := seedItems(t, src, "attribute",
		map[string]string{"code": "red", "type": "color", "domain": "product"},
	)
	cache := newCache(t, src, "attribute",
		WithDiscriminator("attribute.type"),
		WithCondition("attribute.domain", "product"))

	id, err := cache.ID(ctx, "red", "color")
	require.NoError(t, err)
	assert.Equal(t, seeded[0].ID(), id)
}

func TestLookupCache_Set(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	cache := newCache(t, src, "attribute", WithDiscriminator("attribute.type"))

	item := domain.NewItem("attribute")
	item.SetID("42")
	item.SetCode("red")
	item.SetType("color")
	cache.Set(item)

	id, err := cache.ID(ctx, "red", "color")
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.Zero(t, src.Searches("attribute"))
}

func TestLookupCache_Preload(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	values := make([]map[string]string, PreloadPageSize+1)
	for i := range values {
		values[i] = map[string]string{"code": "g" + strconv.Itoa(i)}
	}
	seedItems(t, src, "customer/group", values...)
	cache := newCache(t, src, "customer/group")

	n, err := cache.Preload(ctx)
	require.NoError(t, err)
	assert.Equal(t, PreloadPageSize+1, n)
	assert.Equal(t, PreloadPageSize+1, cache.Len())
	assert.Equal(t, 2, src.Searches("customer/group"))

	id, err := cache.ID(ctx, "g1000")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 2, src.Searches("customer/group"), "preloaded codes are served from memory")
}

func TestCacheSet_For(t *testing.T) {
	src := newCountingSource()
	set := NewCacheSet(src, nil)

	first, err := set.For("attribute", WithDiscriminator("attribute.type"))
	require.NoError(t, err)
	second, err := set.For("attribute")
	require.NoError(t, err)
	other, err := set.For("catalog")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, "attribute.type", second.discKey, "options of the first call win")

	_, err = set.For("")
	assert.ErrorIs(t, err, domain.ErrUnknownResource)
}
