package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/billbackhq/billback-api/internal/models"
)

// MappingSource supplies the charge code mapping table.
type MappingSource interface {
	List(ctx context.Context) ([]models.ChargeCodeMapping, error)
}

type mappingKey struct {
	propertyID string
	glCode     string
}

// Resolver looks up billback charge codes from GL codes. An exact
// (property_id, gl_code) match wins over the ("*", gl_code) wildcard; no
// fuzzy matching of any kind.
//
// The mapping table is read-mostly, so Resolver keeps a TTL'd snapshot in
// memory. The clock is injected and Invalidate drops the snapshot
// immediately after mapping writes, so resolution always reflects the
// latest committed table within one request.
type Resolver struct {
	source MappingSource

	mu       sync.RWMutex
	cache    map[mappingKey]models.ChargeCodeMapping
	loadedAt time.Time

	ttl time.Duration
	now func() time.Time
}

// NewResolver builds a resolver with the given snapshot TTL. A nil clock
// defaults to time.Now.
func NewResolver(source MappingSource, ttl time.Duration, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		source: source,
		ttl:    ttl,
		now:    now,
	}
}

// Resolve returns the effective mapping for (propertyID, glCode), or nil
// when neither an exact nor a wildcard row exists. Callers must treat a nil
// mapping as an unresolved charge code.
func (r *Resolver) Resolve(ctx context.Context, propertyID, glCode string) (*models.ChargeCodeMapping, error) {
	if err := r.ensureFresh(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.cache[mappingKey{propertyID, glCode}]; ok {
		return &m, nil
	}
	if m, ok := r.cache[mappingKey{models.WildcardPropertyID, glCode}]; ok {
		return &m, nil
	}
	return nil, nil
}

// Invalidate drops the cached snapshot; the next Resolve reloads.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = nil
}

func (r *Resolver) ensureFresh(ctx context.Context) error {
	r.mu.RLock()
	fresh := r.cache != nil && r.now().Sub(r.loadedAt) < r.ttl
	r.mu.RUnlock()
	if fresh {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache != nil && r.now().Sub(r.loadedAt) < r.ttl {
		return nil
	}

	mappings, err := r.source.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load charge code mappings: %w", err)
	}
	cache := make(map[mappingKey]models.ChargeCodeMapping, len(mappings))
	for _, m := range mappings {
		cache[mappingKey{m.PropertyID, m.GLCode}] = m
	}
	r.cache = cache
	r.loadedAt = r.now()
	return nil
}
