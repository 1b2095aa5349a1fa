package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newCachedCatalog(t *testing.T, store CatalogStore) (*Catalog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCatalog(store, client, time.Minute, nil), mr
}

func TestCatalogSnapshotCaches(t *testing.T) {
	store := newMemoryStore()
	catalog, mr := newCachedCatalog(t, store)
	ctx := context.Background()

	require.NoError(t, catalog.Upsert(ctx, SystemPermission{ID: "users.view", Group: "users"}))

	snapshot, err := catalog.Snapshot(ctx)
	require.NoError(t, err)
	_, ok := snapshot.Lookup("users.view")
	require.True(t, ok)
	require.True(t, mr.Exists("rbac:catalog:v1"))

	// A write behind the catalog's back stays invisible while cached.
	require.NoError(t, store.UpsertSystemPermission(ctx, SystemPermission{ID: "users.edit"}))
	snapshot, err = catalog.Snapshot(ctx)
	require.NoError(t, err)
	_, ok = snapshot.Lookup("users.edit")
	require.False(t, ok)
}

func TestCatalogWritesInvalidateCache(t *testing.T) {
	store := newMemoryStore()
	catalog, mr := newCachedCatalog(t, store)
	ctx := context.Background()

	require.NoError(t, catalog.Upsert(ctx, SystemPermission{ID: "users.view"}))
	_, err := catalog.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists("rbac:catalog:v1"))

	require.NoError(t, catalog.Upsert(ctx, SystemPermission{ID: "users.edit"}))
	require.False(t, mr.Exists("rbac:catalog:v1"))

	snapshot, err := catalog.Snapshot(ctx)
	require.NoError(t, err)
	_, ok := snapshot.Lookup("users.edit")
	require.True(t, ok)
}

func TestCatalogSoftDeleteHidesEntry(t *testing.T) {
	store := newMemoryStore()
	catalog, _ := newCachedCatalog(t, store)
	ctx := context.Background()

	require.NoError(t, catalog.Upsert(ctx, SystemPermission{ID: "users.view"}))
	require.NoError(t, catalog.SoftDelete(ctx, "users.view"))

	snapshot, err := catalog.Snapshot(ctx)
	require.NoError(t, err)
	_, ok := snapshot.Lookup("users.view")
	require.False(t, ok)

	// The row itself survives for administrative listings.
	entries, err := catalog.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, entries[0].IsActive)
}

func TestCatalogForceDeleteCascades(t *testing.T) {
	store := newMemoryStore()
	catalog, _ := newCachedCatalog(t, store)
	ctx := context.Background()

	role, err := store.InsertRole(ctx, Role{OrganisationID: 1, Name: "Admin", Permissions: []string{"users.view", "users.edit"}})
	require.NoError(t, err)
	require.NoError(t, catalog.Upsert(ctx, SystemPermission{ID: "users.view"}))

	require.NoError(t, catalog.ForceDelete(ctx, "users.view"))

	got, err := store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"users.edit"}, got.Permissions)

	entries, err := catalog.ListEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCatalogDegradesWithoutRedis(t *testing.T) {
	store := newMemoryStore()
	catalog := NewCatalog(store, nil, 0, nil)
	ctx := context.Background()

	require.NoError(t, catalog.Upsert(ctx, SystemPermission{ID: "users.view"}))
	snapshot, err := catalog.Snapshot(ctx)
	require.NoError(t, err)
	_, ok := snapshot.Lookup("users.view")
	require.True(t, ok)
}
