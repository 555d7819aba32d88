// Package cache holds compiled component outputs in a size-bounded LRU.
// Entries are stored LZ4-compressed; sizes and eviction work on the
// compressed footprint.
package cache

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pierrec/lz4/v4"
)

// DefaultMaxSize is the cache budget used when none is given (64 MB).
const DefaultMaxSize = 64 * 1024 * 1024

const bytesPerKB = 1024.0

// evictionSampleSize is the number of LRU-tail candidates considered per eviction.
const evictionSampleSize = 5

// ErrCorrupt is returned when a stored entry fails to decompress.
var ErrCorrupt = errors.New("cache entry corrupt")

// Key identifies a compile: source text, path and compiler options.
type Key [sha256.Size]byte

// NewKey hashes the inputs that determine a compile output. Parts are
// length-prefixed so different splits of the same bytes never collide.
func NewKey(parts ...string) Key {
	h := sha256.New()

	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write([]byte(p))
	}

	var k Key

	copy(k[:], h.Sum(nil))

	return k
}

// Entry is a cached compile output.
type Entry struct {
	Code string
	Map  []byte
	// Meta is small caller-defined data stored uncompressed.
	Meta []byte
}

// block is one LZ4-compressed byte slice. Incompressible input is stored raw.
type block struct {
	data []byte
	size int
	raw  bool
}

func compress(src []byte) block {
	if len(src) == 0 {
		return block{}
	}

	dst := make([]byte, lz4.CompressBlockBound(len(src)))

	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil || n == 0 || n >= len(src) {
		return block{data: append([]byte(nil), src...), size: len(src), raw: true}
	}

	return block{data: dst[:n], size: len(src)}
}

func (b block) decompress() ([]byte, error) {
	if b.raw || b.size == 0 {
		return append([]byte(nil), b.data...), nil
	}

	out := make([]byte, b.size)

	n, err := lz4.UncompressBlock(b.data, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if n != b.size {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCorrupt, b.size, n)
	}

	return out, nil
}

type lruEntry struct {
	key         Key
	code        block
	sourceMap   block
	meta        []byte
	size        int64
	accessCount int64
	prev        *lruEntry
	next        *lruEntry
}

// evictionCost is higher for entries that are worth keeping: small and
// frequently read.
func (e *lruEntry) evictionCost() float64 {
	sizeKB := float64(e.size) / bytesPerKB
	if sizeKB < 1 {
		sizeKB = 1
	}

	return float64(e.accessCount) / sizeKB
}

// LRU is a concurrency-safe, size-bounded compile output cache.
type LRU struct {
	mu          sync.Mutex
	entries     map[Key]*lruEntry
	head        *lruEntry // Most recently used.
	tail        *lruEntry // Least recently used.
	maxSize     int64
	currentSize int64

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewLRU creates a cache holding at most maxSize compressed bytes.
func NewLRU(maxSize int64) *LRU {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &LRU{
		entries: make(map[Key]*lruEntry),
		maxSize: maxSize,
	}
}

// Get returns the entry stored under key.
func (c *LRU) Get(key Key) (Entry, bool, error) {
	c.mu.Lock()

	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)

		return Entry{}, false, nil
	}

	e.accessCount++
	c.moveToFront(e)
	code, sourceMap, meta := e.code, e.sourceMap, e.meta
	c.mu.Unlock()

	c.hits.Add(1)

	codeBytes, err := code.decompress()
	if err != nil {
		c.Remove(key)

		return Entry{}, false, err
	}

	mapBytes, err := sourceMap.decompress()
	if err != nil {
		c.Remove(key)

		return Entry{}, false, err
	}

	return Entry{Code: string(codeBytes), Map: mapBytes, Meta: append([]byte(nil), meta...)}, true, nil
}

// Put stores entry under key. Entries larger than the whole budget are
// not cached.
func (c *LRU) Put(key Key, entry Entry) {
	code := compress([]byte(entry.Code))
	sourceMap := compress(entry.Map)
	meta := append([]byte(nil), entry.Meta...)
	size := int64(len(code.data) + len(sourceMap.data) + len(meta))

	if size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeFromList(old)
		delete(c.entries, key)
		c.currentSize -= old.size
	}

	for c.currentSize+size > c.maxSize && c.tail != nil {
		c.evictLowestCost()
	}

	e := &lruEntry{key: key, code: code, sourceMap: sourceMap, meta: meta, size: size, accessCount: 1}

	c.entries[key] = e
	c.currentSize += size
	c.addToFront(e)
}

// Remove drops key from the cache.
func (c *LRU) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}

	c.removeFromList(e)
	delete(c.entries, key)
	c.currentSize -= e.size
}

// Clear removes all entries. Counters are kept.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[Key]*lruEntry)
	c.head = nil
	c.tail = nil
	c.currentSize = 0
}

// Stats holds cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Entries     int
	CurrentSize int64
	MaxSize     int64
}

// HitRate returns hits / lookups, or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the cache counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Entries:     len(c.entries),
		CurrentSize: c.currentSize,
		MaxSize:     c.maxSize,
	}
}

func (c *LRU) moveToFront(e *lruEntry) {
	if e == c.head {
		return
	}

	c.removeFromList(e)
	c.addToFront(e)
}

func (c *LRU) addToFront(e *lruEntry) {
	e.prev = nil
	e.next = c.head

	if c.head != nil {
		c.head.prev = e
	}

	c.head = e

	if c.tail == nil {
		c.tail = e
	}
}

func (c *LRU) removeFromList(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}

	e.prev, e.next = nil, nil
}

// evictLowestCost removes the cheapest of the last evictionSampleSize
// entries in recency order.
func (c *LRU) evictLowestCost() {
	victim := c.tail
	lowest := victim.evictionCost()

	e := victim.prev
	for i := 1; e != nil && i < evictionSampleSize; i++ {
		if cost := e.evictionCost(); cost < lowest {
			lowest = cost
			victim = e
		}

		e = e.prev
	}

	c.removeFromList(victim)
	delete(c.entries, victim.key)
	c.currentSize -= victim.size
	c.evictions.Add(1)
}
