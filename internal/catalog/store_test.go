package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/database"
	"github.com/bryan-buckman/grainotheque/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *database.MemoryKV) {
	t.Helper()
	kv := database.NewMemory()
	return New(kv, DefaultStorageKey, Seed(testNow), nil), kv
}

func persisted(t *testing.T, kv database.KV) []model.Listing {
	t.Helper()
	raw, ok, err := kv.Get(context.Background(), DefaultStorageKey)
	require.NoError(t, err)
	require.True(t, ok, "collection should be persisted")
	var listings []model.Listing
	require.NoError(t, json.Unmarshal(raw, &listings))
	return listings
}

func ids(listings []model.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.ID
	}
	return out
}

func TestLoad_ReseedsAbsentOrMalformedState(t *testing.T) {
	cases := map[string]*string{
		"absent":        nil,
		"not json":      ptr("{{{"),
		"object":        ptr(`{"id":"x"}`),
		"null":          ptr("null"),
		"string":        ptr(`"hello"`),
		"empty":         ptr(""),
		"negative":      ptr(`[{"id":"a","price":-1}]`),
		"missing id":    ptr(`[{"title":"no id"}]`),
		"duplicate ids": ptr(`[{"id":"a"},{"id":"a"}]`),
		"bad reports":   ptr(`[{"id":"a","reports":-3}]`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			store, kv := newTestStore(t)
			if raw != nil {
				require.NoError(t, kv.Set(context.Background(), DefaultStorageKey, []byte(*raw)))
			}

			got := store.Load(context.Background())

			assert.Equal(t, Seed(testNow), got)
			assert.Equal(t, Seed(testNow), persisted(t, kv))
		})
	}
}

func TestLoad_ReturnsPersistedCollection(t *testing.T) {
	store, kv := newTestStore(t)
	stored := []model.Listing{{ID: "x", Title: "kept", Price: 3, CreatedAt: testNow}}
	data, _ := json.Marshal(stored)
	require.NoError(t, kv.Set(context.Background(), DefaultStorageKey, data))

	assert.Equal(t, stored, store.Load(context.Background()))
}

func TestLoad_EmptyArrayIsValid(t *testing.T) {
	store, kv := newTestStore(t)
	require.NoError(t, kv.Set(context.Background(), DefaultStorageKey, []byte("[]")))

	assert.Empty(t, store.Load(context.Background()))
}

func TestLoad_StableAcrossStores(t *testing.T) {
	kv := database.NewMemory()
	first := New(kv, "", Seed(testNow), nil).Load(context.Background())
	second := New(kv, "", Seed(testNow.Add(time.Hour)), nil).Load(context.Background())

	assert.Equal(t, first, second, "second store must read the persisted seed, not its own")
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore(t)

	ok, err := store.Insert(ctx, model.Listing{ID: "new", Title: "N", CreatedAt: testNow})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"demo-1", "demo-2", "demo-3", "new"}, ids(persisted(t, kv)))

	ok, err = store.Insert(ctx, model.Listing{ID: "demo-1"})
	require.NoError(t, err)
	assert.False(t, ok, "duplicate id is refused")

	ok, err = store.Insert(ctx, model.Listing{})
	require.NoError(t, err)
	assert.False(t, ok, "empty id is refused")
	assert.Len(t, store.All(ctx), 4)
}

func TestIncrementReportCount(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore(t)
	before := store.All(ctx)

	for i := 0; i < 2; i++ {
		ok, err := store.IncrementReportCount(ctx, "demo-2")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	after := store.All(ctx)
	require.Len(t, after, len(before))
	for i := range after {
		if after[i].ID == "demo-2" {
			assert.Equal(t, before[i].Reports+2, after[i].Reports)
			continue
		}
		assert.Equal(t, before[i], after[i])
	}
	assert.Equal(t, after, persisted(t, kv))

	ok, err := store.IncrementReportCount(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore(t)

	ok, err := store.Remove(ctx, "demo-2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"demo-1", "demo-3"}, ids(store.All(ctx)))
	assert.Equal(t, []string{"demo-1", "demo-3"}, ids(persisted(t, kv)))

	ok, err = store.Remove(ctx, "demo-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, store.All(ctx), 2)
}

func TestSetImageAndGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	ok, err := store.SetImage(ctx, "demo-3", "https://example.com/a.png")
	require.NoError(t, err)
	assert.True(t, ok)

	l, found := store.Get(ctx, "demo-3")
	require.True(t, found)
	assert.Equal(t, "https://example.com/a.png", l.Image)

	_, found = store.Get(ctx, "missing")
	assert.False(t, found)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore(t)
	_, err := store.Remove(ctx, "demo-1")
	require.NoError(t, err)
	_, err = store.IncrementReportCount(ctx, "demo-2")
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	assert.Equal(t, Seed(testNow), store.All(ctx))
	assert.Equal(t, Seed(testNow), persisted(t, kv))
}

func TestAll_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	got := store.All(ctx)
	got[0].Title = "mutated"

	assert.NotEqual(t, "mutated", store.All(ctx)[0].Title)
}

type failingKV struct {
	*database.MemoryKV
	failSet bool
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errors.New("disk full")
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func TestMutation_FailedPersistLeavesCollectionUntouched(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{MemoryKV: database.NewMemory()}
	store := New(kv, "", Seed(testNow), nil)
	store.Load(ctx)

	kv.failSet = true
	_, err := store.Remove(ctx, "demo-1")
	require.Error(t, err)

	assert.Equal(t, Seed(testNow), store.All(ctx))
}

func ptr(s string) *string { return &s }
