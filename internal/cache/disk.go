package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DiskCache persists stage outputs across runs, one file per key
type DiskCache struct {
	dir string
	ttl time.Duration
}

// NewDiskCache creates a new disk cache
func NewDiskCache(dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{
		dir: dir,
		ttl: ttl,
	}
}

type cacheEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get retrieves a value from the disk cache
func (c *DiskCache) Get(key string) ([]byte, bool) {
	path := c.path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(path)
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(path)
		return nil, false
	}

	return entry.Data, true
}

// Set writes the entry to a temp file and renames it into place
func (c *DiskCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}

	data, err := json.Marshal(cacheEntry{Data: value, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return eris.Wrap(err, "cache: marshal entry")
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return eris.Wrap(err, "cache: create cache dir")
	}

	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return eris.Wrap(err, "cache: create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrap(err, "cache: write cache file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "cache: close cache file")
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		return eris.Wrap(err, "cache: rename cache file")
	}
	return nil
}

// Delete removes a value; deleting a missing key is not an error
func (c *DiskCache) Delete(key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrap(err, "cache: delete cache file")
	}
	return nil
}

// Clear removes all cached files
func (c *DiskCache) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return eris.Wrap(err, "cache: clear cache dir")
	}
	return nil
}

// path maps a key to a file name; keys contain ':' which some filesystems reject
func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, strings.ReplaceAll(key, ":", "_")+".cache")
}
