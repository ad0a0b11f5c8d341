// Package thumbcache keeps decoded preview images in memory under a byte and
// entry budget, evicting the least recently used entries first.
package thumbcache

import (
	"container/list"
	"image"
	"sync"
)

const (
	DefaultMaxBytes         = 256 << 20
	DefaultMaxItems         = 2000
	DefaultBytesPerPixel    = 4
	DefaultResizeJumpPixels = 48
	DefaultResizeJumpRatio  = 0.25
)

// Key identifies a thumbnail: the same path at two sizes is two entries
type Key struct {
	Path string
	Size int
}

type entry struct {
	key   Key
	img   image.Image
	bytes int64
}

// Stats is a point-in-time view of the cache
type Stats struct {
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
	MaxBytes  int64  `json:"max_bytes"`
	MaxItems  int    `json:"max_items"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Cache is an LRU of decoded thumbnails. One mutex guards the map, the recency
// list and the counters; Get reorders, so it takes the write lock too.
type Cache struct {
	mu        sync.Mutex
	items     map[Key]*list.Element
	order     *list.List // front = least recently used
	bytes     int64
	lastSize  int
	hits      uint64
	misses    uint64
	evictions uint64

	maxBytes         int64
	maxItems         int
	bytesPerPixel    int
	resizeJumpPixels int
	resizeJumpRatio  float64
}

// Option configures a Cache
type Option func(*Cache)

// WithMaxBytes sets the estimated byte budget
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithMaxItems sets the entry budget
func WithMaxItems(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxItems = n
		}
	}
}

// WithBytesPerPixel sets the constant used by the size estimate
func WithBytesPerPixel(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.bytesPerPixel = n
		}
	}
}

// WithResizeJump sets when a size change counts as a jump that purges other sizes
func WithResizeJump(pixels int, ratio float64) Option {
	return func(c *Cache) {
		c.resizeJumpPixels = pixels
		c.resizeJumpRatio = ratio
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		items:            make(map[Key]*list.Element),
		order:            list.New(),
		maxBytes:         DefaultMaxBytes,
		maxItems:         DefaultMaxItems,
		bytesPerPixel:    DefaultBytesPerPixel,
		resizeJumpPixels: DefaultResizeJumpPixels,
		resizeJumpRatio:  DefaultResizeJumpRatio,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EstimateBytes is the budget heuristic for one entry: size*size*bytesPerPixel
func (c *Cache) EstimateBytes(size int) int64 {
	return int64(size) * int64(size) * int64(c.bytesPerPixel)
}

// Get returns the cached image and marks it most recently used
func (c *Cache) Get(path string, size int) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[Key{Path: path, Size: size}]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToBack(el)
	return el.Value.(*entry).img, true
}

// Put inserts or replaces an entry and evicts from the least recently used end
// until both budgets hold.
func (c *Cache) Put(path string, size int, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key{Path: path, Size: size}
	est := c.EstimateBytes(size)

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		c.bytes += est - e.bytes
		e.img = img
		e.bytes = est
		c.order.MoveToBack(el)
	} else {
		c.items[key] = c.order.PushBack(&entry{key: key, img: img, bytes: est})
		c.bytes += est
	}

	for c.order.Len() > 0 && (c.bytes > c.maxBytes || c.order.Len() > c.maxItems) {
		c.removeElement(c.order.Front())
		c.evictions++
	}
}

// ObserveSize records the preview size now in use. When it differs from the
// previous size by at least the jump threshold, every entry of another size is
// dropped. Returns the number of entries removed.
func (c *Cache) ObserveSize(size int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.lastSize
	c.lastSize = size
	if prev == 0 || !c.isJump(prev, size) {
		return 0
	}

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry).key.Size != size {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *Cache) isJump(prev, size int) bool {
	diff := size - prev
	if diff < 0 {
		diff = -diff
	}
	if c.resizeJumpPixels > 0 && diff >= c.resizeJumpPixels {
		return true
	}
	return c.resizeJumpRatio > 0 && float64(diff) >= c.resizeJumpRatio*float64(prev)
}

// RemovePath drops every size cached for path
func (c *Cache) RemovePath(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry).key.Path == path {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

// Clear drops everything and resets the counters
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[Key]*list.Element)
	c.order.Init()
	c.bytes = 0
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// Stats returns the current counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:   c.order.Len(),
		Bytes:     c.bytes,
		MaxBytes:  c.maxBytes,
		MaxItems:  c.maxItems,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Keys returns the cached keys from least to most recently used
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

func (c *Cache) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.items, e.key)
	c.bytes -= e.bytes
}
