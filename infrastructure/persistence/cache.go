// Package persistence carries store-adjacent infrastructure shared by the
// concrete repositories, currently the builder cache.
package persistence

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"nildb/application/ports"
	"nildb/domain"
)

// CachedBuilderRepository decorates a BuilderRepository with an in-memory
// DID → Builder map. Every mutation taints (removes) the entry; reads
// refill from the store on miss. A reader may observe a stale entry for
// the duration of an in-flight invalidation; ownership checks tolerate
// that because collections and queries are verified against the store as
// well.
type CachedBuilderRepository struct {
	inner  ports.BuilderRepository
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[domain.DID]*domain.Builder
}

// NewCachedBuilderRepository wraps the store-backed repository.
func NewCachedBuilderRepository(inner ports.BuilderRepository, logger *zap.Logger) *CachedBuilderRepository {
	return &CachedBuilderRepository{
		inner:   inner,
		logger:  logger,
		entries: make(map[domain.DID]*domain.Builder),
	}
}

// FindByID serves from cache, falling through to the store on miss.
func (c *CachedBuilderRepository) FindByID(ctx context.Context, id domain.DID) (*domain.Builder, error) {
	key := domain.NormalizeDID(id.String())

	c.mu.RLock()
	cached, hit := c.entries[key]
	c.mu.RUnlock()
	if hit {
		return copyBuilder(cached), nil
	}

	builder, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = copyBuilder(builder)
	c.mu.Unlock()
	return builder, nil
}

// Insert writes through and taints.
func (c *CachedBuilderRepository) Insert(ctx context.Context, builder *domain.Builder) error {
	err := c.inner.Insert(ctx, builder)
	c.Taint(builder.ID)
	return err
}

// SetName writes through and taints.
func (c *CachedBuilderRepository) SetName(ctx context.Context, id domain.DID, name string) error {
	err := c.inner.SetName(ctx, id, name)
	c.Taint(id)
	return err
}

// AddCollection writes through and taints.
func (c *CachedBuilderRepository) AddCollection(ctx context.Context, id domain.DID, collectionID string) error {
	err := c.inner.AddCollection(ctx, id, collectionID)
	c.Taint(id)
	return err
}

// RemoveCollection writes through and taints.
func (c *CachedBuilderRepository) RemoveCollection(ctx context.Context, id domain.DID, collectionID string) error {
	err := c.inner.RemoveCollection(ctx, id, collectionID)
	c.Taint(id)
	return err
}

// AddQuery writes through and taints.
func (c *CachedBuilderRepository) AddQuery(ctx context.Context, id domain.DID, queryID string) error {
	err := c.inner.AddQuery(ctx, id, queryID)
	c.Taint(id)
	return err
}

// RemoveQuery writes through and taints.
func (c *CachedBuilderRepository) RemoveQuery(ctx context.Context, id domain.DID, queryID string) error {
	err := c.inner.RemoveQuery(ctx, id, queryID)
	c.Taint(id)
	return err
}

// Delete writes through and taints.
func (c *CachedBuilderRepository) Delete(ctx context.Context, id domain.DID) error {
	err := c.inner.Delete(ctx, id)
	c.Taint(id)
	return err
}

// Taint drops the cached entry for a DID.
func (c *CachedBuilderRepository) Taint(id domain.DID) {
	key := domain.NormalizeDID(id.String())
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// copyBuilder returns an aliasing-free copy so callers can mutate their
// view without corrupting the cache.
func copyBuilder(builder *domain.Builder) *domain.Builder {
	out := *builder
	out.Collections = append([]string(nil), builder.Collections...)
	out.Queries = append([]string(nil), builder.Queries...)
	return &out
}
