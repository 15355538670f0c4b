// Package cache provides the memo cache used to skip repeat semantic calls
// for identical text. Absence of a cache never changes correctness, only
// cost, so Get and Put are best-effort and never return errors.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// Cache is a string key/value memo store.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key, value string)
}

// Key derives a stable cache key from its parts. Parts are normalized so
// that trivially different spellings of the same text share an entry.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strings.ToLower(strings.Join(strings.Fields(p), " "))))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Memory is an in-process cache. The zero value is not usable; call New.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

func New() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (c *Memory) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *Memory) Put(_ context.Context, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
}

// Noop discards everything; every Get is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, bool) { return "", false }
func (Noop) Put(context.Context, string, string)        {}
