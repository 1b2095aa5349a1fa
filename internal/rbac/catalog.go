package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const catalogCacheKey = "rbac:catalog:v1"

// CatalogSnapshot is an explicitly-loaded view of the system-permission
// catalog. Resolution reads snapshots, never the live table, so a decision
// sees one consistent catalog version throughout.
type CatalogSnapshot struct {
	Version int64                       `json:"version"`
	Entries map[string]SystemPermission `json:"entries"`
}

// Lookup returns the active catalog entry for the permission id.
func (s CatalogSnapshot) Lookup(permissionID string) (SystemPermission, bool) {
	entry, ok := s.Entries[permissionID]
	if !ok || !entry.IsActive {
		return SystemPermission{}, false
	}
	return entry, true
}

// CatalogStore persists system-permission catalog entries.
type CatalogStore interface {
	ListSystemPermissions(ctx context.Context) ([]SystemPermission, error)
	UpsertSystemPermission(ctx context.Context, entry SystemPermission) error
	SoftDeleteSystemPermission(ctx context.Context, permissionID string) error
	// ForceDeleteSystemPermission removes the catalog row and strips the
	// permission id from every role's permission set, in one transaction.
	ForceDeleteSystemPermission(ctx context.Context, permissionID string) error
}

// Catalog serves snapshots through a Redis read-through cache, invalidated
// on every catalog write. Concurrent cache misses collapse into a single
// database load.
type Catalog struct {
	store  CatalogStore
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCatalog constructs a Catalog. The Redis client may be nil, in which
// case every snapshot loads from the store directly.
func NewCatalog(store CatalogStore, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Catalog{store: store, client: client, ttl: ttl, logger: logger}
}

// Snapshot returns the current catalog snapshot.
func (c *Catalog) Snapshot(ctx context.Context) (CatalogSnapshot, error) {
	if c.client != nil {
		payload, err := c.client.Get(ctx, catalogCacheKey).Bytes()
		if err == nil {
			var snapshot CatalogSnapshot
			if err := json.Unmarshal(payload, &snapshot); err == nil {
				return snapshot, nil
			}
			c.logger.Warn("catalog cache payload corrupt, reloading")
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("catalog cache read failed", slog.Any("error", err))
		}
	}

	value, err, _ := c.group.Do(catalogCacheKey, func() (any, error) {
		return c.load(ctx)
	})
	if err != nil {
		return CatalogSnapshot{}, err
	}
	return value.(CatalogSnapshot), nil
}

// ListEntries returns every catalog entry, including inactive ones, for
// administrative listings.
func (c *Catalog) ListEntries(ctx context.Context) ([]SystemPermission, error) {
	return c.store.ListSystemPermissions(ctx)
}

// Upsert writes a catalog entry and invalidates the snapshot cache.
func (c *Catalog) Upsert(ctx context.Context, entry SystemPermission) error {
	if entry.ID == "" {
		return errors.New("rbac: catalog entry requires an id")
	}
	if entry.Scope == "" {
		entry.Scope = ScopeOrganisation
	}
	if err := c.store.UpsertSystemPermission(ctx, entry); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// SoftDelete deactivates a catalog entry and invalidates the cache.
func (c *Catalog) SoftDelete(ctx context.Context, permissionID string) error {
	if err := c.store.SoftDeleteSystemPermission(ctx, permissionID); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// ForceDelete removes a catalog entry and cascades removal of the id from
// every role's permission set and invalidates the cache.
func (c *Catalog) ForceDelete(ctx context.Context, permissionID string) error {
	if err := c.store.ForceDeleteSystemPermission(ctx, permissionID); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *Catalog) load(ctx context.Context) (CatalogSnapshot, error) {
	entries, err := c.store.ListSystemPermissions(ctx)
	if err != nil {
		return CatalogSnapshot{}, err
	}
	snapshot := CatalogSnapshot{Entries: make(map[string]SystemPermission, len(entries))}
	for _, entry := range entries {
		snapshot.Entries[entry.ID] = entry
		if v := entry.UpdatedAt.UnixNano(); v > snapshot.Version {
			snapshot.Version = v
		}
	}

	if c.client != nil {
		payload, err := json.Marshal(snapshot)
		if err == nil {
			if err := c.client.Set(ctx, catalogCacheKey, payload, c.ttl).Err(); err != nil {
				c.logger.Warn("catalog cache write failed", slog.Any("error", err))
			}
		}
	}
	return snapshot, nil
}

func (c *Catalog) invalidate(ctx context.Context) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, catalogCacheKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("catalog cache invalidate failed", slog.Any("error", err))
	}
}
