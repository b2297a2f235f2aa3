package contentstore

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/go-cid"
)

// CachedFetcher memoizes block bytes by address. Blocks are immutable for a
// given address, so entries never go stale.
type CachedFetcher struct {
	fetcher Fetcher
	cache   *lru.Cache[cid.Cid, []byte]
}

var _ Fetcher = (*CachedFetcher)(nil)

// NewCachedFetcher wraps fetcher with an LRU cache holding up to size blocks.
func NewCachedFetcher(fetcher Fetcher, size int) (*CachedFetcher, error) {
	cache, err := lru.New[cid.Cid, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachedFetcher{
		fetcher: fetcher,
		cache:   cache,
	}, nil
}

func (f *CachedFetcher) Fetch(ctx context.Context, c cid.Cid) ([]byte, error) {
	if data, ok := f.cache.Get(c); ok {
		return data, nil
	}

	data, err := f.fetcher.Fetch(ctx, c)
	if err != nil {
		return nil, err
	}
	f.cache.Add(c, data)
	return data, nil
}

// Len returns the number of cached blocks.
func (f *CachedFetcher) Len() int {
	return f.cache.Len()
}
