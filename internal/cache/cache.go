// Package cache holds external food lookup results in memory. It is bounded
// by item count, evicts the least recently inserted entries first and only
// drops expired entries when ClearExpired is called.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"

	"github.com/saadjs/kcal-core/internal/model"
)

const (
	DefaultMaxItems = 250
	DefaultTTL      = 7 * 24 * time.Hour
)

type Kind string

const (
	KindFood    Kind = "food"
	KindBarcode Kind = "barcode"
	KindQuery   Kind = "query"
)

type entry struct {
	kind       Kind
	food       model.FoodSearchResult
	results    []model.FoodSearchResult
	insertedAt time.Time
	size       int64
}

// Stats is a consistent snapshot taken under the cache lock.
type Stats struct {
	Items      int           `json:"items"`
	MaxItems   int           `json:"max_items"`
	TotalBytes int64         `json:"total_bytes"`
	ByKind     map[Kind]int  `json:"by_kind"`
	Oldest     time.Time     `json:"oldest,omitempty"`
	TTL        time.Duration `json:"ttl"`
}

type Cache struct {
	mu         sync.Mutex
	lru        *simplelru.LRU[string, entry]
	maxItems   int
	ttl        time.Duration
	totalBytes int64
	byKind     map[Kind]int
	now        func() time.Time
	log        *zap.Logger
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// New returns an empty cache. Non-positive bounds fall back to the defaults.
func New(maxItems int, ttl time.Duration, opts ...Option) (*Cache, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		maxItems: maxItems,
		ttl:      ttl,
		byKind:   make(map[Kind]int),
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	lru, err := simplelru.NewLRU[string, entry](maxItems, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	c.lru = lru
	return c, nil
}

// onEvict runs under c.mu for every removal, including capacity eviction.
func (c *Cache) onEvict(_ string, e entry) {
	c.totalBytes -= e.size
	c.byKind[e.kind]--
}

// NormalizeQuery lower-cases the query and collapses whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// NormalizeBarcode strips surrounding whitespace and inner spaces or dashes.
func NormalizeBarcode(code string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(code))
}

func key(kind Kind, k string) string {
	return string(kind) + ":" + k
}

func (c *Cache) put(k string, e entry) {
	e.insertedAt = c.now()
	e.size = sizeOf(k, e)

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-inserting refreshes the entry without going through onEvict.
	if old, ok := c.lru.Peek(k); ok {
		c.totalBytes -= old.size
		c.byKind[old.kind]--
	}
	c.lru.Add(k, e)
	c.totalBytes += e.size
	c.byKind[e.kind]++
}

func (c *Cache) get(k string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Peek(k)
}

// PutSearchResult caches a single result under its provider key.
func (c *Cache) PutSearchResult(r model.FoodSearchResult) {
	c.put(key(KindFood, r.Key()), entry{kind: KindFood, food: r})
}

func (c *Cache) SearchResult(resultKey string) (model.FoodSearchResult, bool) {
	e, ok := c.get(key(KindFood, resultKey))
	if !ok {
		return model.FoodSearchResult{}, false
	}
	return e.food, true
}

func (c *Cache) PutBarcode(code string, r model.FoodSearchResult) {
	c.put(key(KindBarcode, NormalizeBarcode(code)), entry{kind: KindBarcode, food: r})
}

func (c *Cache) Barcode(code string) (model.FoodSearchResult, bool) {
	e, ok := c.get(key(KindBarcode, NormalizeBarcode(code)))
	if !ok {
		return model.FoodSearchResult{}, false
	}
	return e.food, true
}

// PutQuery caches the result list of a search. An empty list is a valid,
// cacheable answer.
func (c *Cache) PutQuery(query string, results []model.FoodSearchResult) {
	cp := append([]model.FoodSearchResult(nil), results...)
	c.put(key(KindQuery, NormalizeQuery(query)), entry{kind: KindQuery, results: cp})
}

func (c *Cache) Query(query string) ([]model.FoodSearchResult, bool) {
	e, ok := c.get(key(KindQuery, NormalizeQuery(query)))
	if !ok {
		return nil, false
	}
	return append([]model.FoodSearchResult(nil), e.results...), true
}

// ClearExpired removes entries inserted more than the TTL ago and returns how
// many were removed.
func (c *Cache) ClearExpired() int {
	cutoff := c.now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, k := range c.lru.Keys() {
		e, ok := c.lru.Peek(k)
		if ok && e.insertedAt.Before(cutoff) {
			c.lru.Remove(k)
			removed++
		}
	}
	if removed > 0 {
		c.log.Debug("expired cache entries cleared", zap.Int("removed", removed))
	}
	return removed
}

// ClearAll empties the cache.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.totalBytes = 0
	c.byKind = make(map[Kind]int)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Items:      c.lru.Len(),
		MaxItems:   c.maxItems,
		TotalBytes: c.totalBytes,
		ByKind:     make(map[Kind]int, len(c.byKind)),
		TTL:        c.ttl,
	}
	for k, n := range c.byKind {
		if n > 0 {
			s.ByKind[k] = n
		}
	}
	if _, e, ok := c.lru.GetOldest(); ok {
		s.Oldest = e.insertedAt
	}
	return s
}

// sizeOf approximates the memory held by an entry from its encoded form.
func sizeOf(k string, e entry) int64 {
	var payload any = e.food
	if e.kind == KindQuery {
		payload = e.results
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return int64(len(k))
	}
	return int64(len(k) + len(raw))
}
