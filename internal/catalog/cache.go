package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedFetcher memoises FetchRecords results per limit for a short TTL so
// bursts of lexical searches share one catalog round trip. Failures are not
// cached.
type CachedFetcher struct {
	next  Fetcher
	cache *expirable.LRU[int, []Record]
}

// NewCachedFetcher wraps next. A non-positive ttl disables caching and
// returns next's results directly.
func NewCachedFetcher(next Fetcher, ttl time.Duration) *CachedFetcher {
	f := &CachedFetcher{next: next}
	if ttl > 0 {
		f.cache = expirable.NewLRU[int, []Record](8, nil, ttl)
	}
	return f
}

// FetchRecords returns cached records for limit or fetches them.
func (f *CachedFetcher) FetchRecords(ctx context.Context, limit int) ([]Record, error) {
	if f.cache == nil {
		return f.next.FetchRecords(ctx, limit)
	}
	if recs, ok := f.cache.Get(limit); ok {
		return recs, nil
	}
	recs, err := f.next.FetchRecords(ctx, limit)
	if err != nil {
		return nil, err
	}
	f.cache.Add(limit, recs)
	return recs, nil
}
