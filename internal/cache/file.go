package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// File is a JSON-file-backed cache that survives restarts. Writes go through
// a temp file and rename so a crash never leaves a corrupt cache behind.
type File struct {
	mu   sync.Mutex
	path string
	m    map[string]string
	log  *slog.Logger
}

func NewFile(path string, log *slog.Logger) (*File, error) {
	c := &File{
		path: path,
		m:    make(map[string]string),
		log:  log,
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	if err := json.Unmarshal(data, &c.m); err != nil {
		// A corrupt cache is a cost problem, not a correctness problem.
		log.Warn("ignoring corrupt cache file", "path", path, "error", err)
		c.m = make(map[string]string)
	}
	return c, nil
}

func (c *File) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *File) Put(_ context.Context, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	if err := c.saveLocked(); err != nil {
		c.log.Warn("cache persist failed", "path", c.path, "error", err)
	}
}

func (c *File) saveLocked() error {
	data, err := json.Marshal(c.m)
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
