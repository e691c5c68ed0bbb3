package decoder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"

	"github.com/nao1215/tabquery/domain/model"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheEntries is the number of decoded files a Cache keeps.
const DefaultCacheEntries = 16

// Cache memoizes decoded files by content hash. Concurrent decodes of the
// same bytes share one decode. Cached results are shared and must not be
// modified by callers.
type Cache struct {
	opts    Options
	max     int
	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]*Result
	order   []string
}

// NewCache returns a cache holding at most maxEntries results.
func NewCache(opts Options, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &Cache{
		opts:    opts,
		max:     maxEntries,
		entries: make(map[string]*Result, maxEntries),
	}
}

// Key returns the cache key for raw bytes of the given kind.
func (c *Cache) Key(raw []byte, kind model.SourceKind) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]) + "/" + string(kind) + "/" + strconv.QuoteRune(c.opts.Delimiter)
}

// Decode returns a cached result or decodes raw. hit reports a cache hit.
func (c *Cache) Decode(ctx context.Context, raw []byte, kind model.SourceKind) (res *Result, hit bool, err error) {
	key := c.Key(raw, kind)

	c.mu.Lock()
	if cached, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return cached, true, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		decoded, err := Decode(ctx, raw, kind, c.opts)
		if err != nil {
			return nil, err
		}
		c.store(key, decoded)
		return decoded, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Result), false, nil
}

func (c *Cache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) store(key string, res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return
	}
	for len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = res
	c.order = append(c.order, key)
}
