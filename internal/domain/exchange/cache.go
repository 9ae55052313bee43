package exchange

import (
	"context"
	"sync"
	"time"
)

const (
	// latestTTL bounds staleness of "latest" tables.
	latestTTL = time.Hour

	// historicalTTL bounds staleness of dated tables. Historical rates
	// do not change, but re-fetching daily guards against upstream
	// corrections.
	historicalTTL = 24 * time.Hour
)

type cacheEntry struct {
	table     *Rates
	fetchedAt time.Time
}

// CachedProvider decorates a Provider with TTL caching. Safe for
// concurrent use across calculation runs.
type CachedProvider struct {
	inner Provider
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCachedProvider wraps a provider with the standard TTLs.
func NewCachedProvider(inner Provider) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(base string, asOf time.Time) string {
	if asOf.IsZero() {
		return base + "@latest"
	}
	return base + "@" + asOf.UTC().Format("2006-01-02")
}

// Rates implements Provider.
func (p *CachedProvider) Rates(ctx context.Context, base string, asOf time.Time) (*Rates, error) {
	key := cacheKey(base, asOf)
	ttl := latestTTL
	if !asOf.IsZero() {
		ttl = historicalTTL
	}

	p.mu.RLock()
	entry, ok := p.entries[key]
	p.mu.RUnlock()
	if ok && p.now().Sub(entry.fetchedAt) < ttl {
		return entry.table, nil
	}

	table, err := p.inner.Rates(ctx, base, asOf)
	if err != nil {
		// Serve a stale entry rather than failing the calculation.
		if ok {
			return entry.table, nil
		}
		return nil, err
	}

	p.mu.Lock()
	p.entries[key] = cacheEntry{table: table, fetchedAt: p.now()}
	p.mu.Unlock()

	return table, nil
}

// Refresh re-fetches the "latest" table for each base currency,
// bypassing the TTL. Used by the background worker to keep request
// paths on a warm cache.
func (p *CachedProvider) Refresh(ctx context.Context, bases []string) error {
	var firstErr error
	for _, base := range bases {
		table, err := p.inner.Rates(ctx, base, Latest)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.mu.Lock()
		p.entries[cacheKey(base, Latest)] = cacheEntry{table: table, fetchedAt: p.now()}
		p.mu.Unlock()
	}
	return firstErr
}
