package marketdata

import (
	"context"
	"time"

	"DriftWatch/internal/domain/models"
	"DriftWatch/pkg/cache"
	applogger "DriftWatch/pkg/logger"
)

// SnapshotProvider builds point-in-time market snapshots from the window
// store. Snapshots are cached for a short TTL so concurrent consumers within
// one scan interval share a single consistent view.
type SnapshotProvider struct {
	store     *WindowStore
	cache     cache.Service
	cacheKey  string
	reference string
	ttl       time.Duration
	l         *applogger.Logger
}

func NewSnapshotProvider(store *WindowStore, c cache.Service, reference string, ttl time.Duration, l *applogger.Logger) *SnapshotProvider {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &SnapshotProvider{
		store:     store,
		cache:     c,
		cacheKey:  cache.GenerateKey("marketdata:snapshot", reference),
		reference: reference,
		ttl:       ttl,
		l:         l,
	}
}

// GetSnapshot returns a snapshot over the given symbols plus the reference
// asset, serving from cache within the TTL.
func (p *SnapshotProvider) GetSnapshot(ctx context.Context, symbols []string) (*models.MarketSnapshot, error) {
	if p.cache != nil {
		var v interface{}
		if err := p.cache.Get(ctx, p.cacheKey, &v); err == nil {
			if snap, ok := v.(*models.MarketSnapshot); ok {
				return snap, nil
			}
		}
	}

	snap := &models.MarketSnapshot{
		TakenAt:   time.Now().UTC(),
		Reference: p.store.Window(p.reference),
		Assets:    make(map[string]models.AssetWindow, len(symbols)),
	}
	for _, sym := range symbols {
		snap.Assets[sym] = p.store.Window(sym)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, p.cacheKey, snap, p.ttl); err != nil && p.l != nil {
			p.l.Warn("snapshot cache set failed", applogger.Error(err))
		}
	}
	return snap, nil
}
