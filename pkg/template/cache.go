package template

import (
	"encoding/binary"
	"hash"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/opal-lang/weave/core/errors"
	"github.com/opal-lang/weave/runtime/parser"
)

// DefaultCacheSize is the entry limit of a cache made with NewCache(0).
const DefaultCacheSize = 256

// CacheKey identifies one parse: template name, delimiters, source and the
// function names visible to the parser.
type CacheKey [blake2b.Size256]byte

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits    int
	Misses  int
	Entries int
}

// Cache memoizes parse results so unchanged sources are not parsed again.
// Parse trees are immutable, so cached trees are shared between families.
type Cache struct {
	mu      sync.RWMutex
	entries map[CacheKey]map[string]*parser.Tree
	maxSize int
	hits    int
	misses  int
}

// NewCache creates a cache holding at most maxSize parses.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &Cache{
		entries: make(map[CacheKey]map[string]*parser.Tree),
		maxSize: maxSize,
	}
}

// Parse is t.Parse(text), reusing an earlier parse of the same input.
func (c *Cache) Parse(t *Template, text string) (*Template, error) {
	t.init()
	key, err := Key(t.name, t.leftDelim, t.rightDelim, text, t.common.funcs.Names())
	if err != nil {
		return nil, err
	}
	if trees, ok := c.get(key); ok {
		t.common.logger.Debug("cache hit", "template", t.name)
		if err := t.addTrees(trees); err != nil {
			return nil, err
		}
		return t, nil
	}

	trees, err := parser.Parse(t.name, text, t.leftDelim, t.rightDelim, t.common.funcs)
	if err != nil {
		return nil, err
	}
	c.put(key, trees)
	if err := t.addTrees(trees); err != nil {
		return nil, err
	}
	return t, nil
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

// get retrieves cached trees by key
func (c *Cache) get(key CacheKey) (map[string]*parser.Tree, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	trees, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return trees, ok
}

// put stores trees in cache
func (c *Cache) put(key CacheKey, trees map[string]*parser.Tree) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple eviction: if cache full, clear it
	if len(c.entries) >= c.maxSize {
		c.entries = make(map[CacheKey]map[string]*parser.Tree)
	}
	c.entries[key] = trees
}

// Key computes the blake2b-256 digest of a parse input. Each part is length
// prefixed so that no two inputs share an encoding.
func Key(name, leftDelim, rightDelim, text string, funcNames []string) (CacheKey, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return CacheKey{}, errors.Wrapf(err, "cache key")
	}
	writePart(h, name)
	writePart(h, leftDelim)
	writePart(h, rightDelim)
	writePart(h, text)
	for _, fn := range funcNames {
		writePart(h, fn)
	}
	var key CacheKey
	copy(key[:], h.Sum(nil))
	return key, nil
}

func writePart(h hash.Hash, s string) {
	var n [binary.MaxVarintLen64]byte
	h.Write(n[:binary.PutUvarint(n[:], uint64(len(s)))])
	h.Write([]byte(s))
}
