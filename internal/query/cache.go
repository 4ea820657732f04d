package query

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docsift/docsift/pkg/types"
)

// defaultCacheSize bounds the compiled-query cache.
const defaultCacheSize = 1024

type cacheKey struct {
	raw     string
	dialect types.Dialect
}

// Cache memoizes parse+compile results. Keys are immutable inputs (raw
// query text plus target dialect), so concurrent readers are safe and a
// hit can never return a stale translation. Errors are not cached.
type Cache struct {
	lru *lru.Cache[cacheKey, string]
}

// NewCache creates a compiled-query cache with LRU eviction.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[cacheKey, string](size)
	if err != nil {
		// Only reachable with a non-positive size, which is handled above.
		panic(fmt.Sprintf("failed to create query cache: %v", err))
	}
	return &Cache{lru: c}
}

// Compile parses raw and lowers it with the given compiler, reusing a
// previous translation for the same (raw, dialect) pair when available.
func (c *Cache) Compile(raw string, comp Compiler) (string, error) {
	key := cacheKey{raw: raw, dialect: comp.Dialect()}
	if native, ok := c.lru.Get(key); ok {
		return native, nil
	}
	node, err := Parse(raw)
	if err != nil {
		return "", err
	}
	native, err := comp.Compile(node)
	if err != nil {
		return "", err
	}
	c.lru.Add(key, native)
	return native, nil
}
