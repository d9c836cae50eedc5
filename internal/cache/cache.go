// Package cache implements the TTL-keyed persistent result cache. One JSON
// file per (ecosystem, name, version) key; entries older than the TTL are
// deleted on the next read attempt rather than by a background sweep.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vulnscout/vulnscout-backend/model"
	"github.com/vulnscout/vulnscout-backend/util"
)

// DefaultTTL is how long a cached scan result stays fresh.
const DefaultTTL = 5 * 24 * time.Hour

// Entry is the on-disk shape: the write timestamp plus the payload.
type Entry struct {
	WrittenAt time.Time        `json:"timestamp"`
	Payload   model.ScanResult `json:"payload"`
}

// ResultCache maps scan keys to their last computed result on disk.
// Concurrent writers to the same key are resolved by atomic rename; readers
// never observe a partially written file.
type ResultCache struct {
	dir    string
	ttl    time.Duration
	logger *zap.Logger

	// now is swappable for TTL tests.
	now func() time.Time
}

// New creates a result cache rooted at dir, creating it if needed.
func New(dir string, ttl time.Duration, logger *zap.Logger) (*ResultCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &ResultCache{dir: dir, ttl: ttl, logger: logger, now: time.Now}, nil
}

// Read returns the cached result for a package, or nil on a miss. A stale
// entry is deleted and reported as a miss. Any I/O or parse error is also
// a miss, never an error to the caller.
func (c *ResultCache) Read(pkg model.PackageIdentity) *model.ScanResult {
	path := c.path(pkg)

	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("cache read failed, treating as miss",
				zap.String("key", pkg.Key()), zap.Error(err))
		}
		return nil
	}

	var entry Entry
	if err := json.Unmarshal(content, &entry); err != nil {
		c.logger.Warn("cache entry corrupt, treating as miss",
			zap.String("key", pkg.Key()), zap.Error(err))
		return nil
	}

	if c.now().Sub(entry.WrittenAt) > c.ttl {
		// Lazy eviction: stale entries disappear on first read.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to evict stale cache entry",
				zap.String("key", pkg.Key()), zap.Error(err))
		}
		return nil
	}

	result := entry.Payload
	result.FromCache = true
	return &result
}

// Write serializes and overwrites the entry for a package unconditionally.
// Failures are logged and reported but never abort a scan.
func (c *ResultCache) Write(pkg model.PackageIdentity, result model.ScanResult) error {
	entry := Entry{WrittenAt: c.now(), Payload: result}

	content, err := json.Marshal(entry)
	if err != nil {
		return &model.CacheIOError{Key: pkg.Key(), Op: "write", Err: err}
	}

	// Write to a temp file in the same directory, then rename into place
	// so concurrent readers never see a torn entry.
	path := c.path(pkg)
	tmp, err := os.CreateTemp(c.dir, ".scan-*.tmp")
	if err != nil {
		return &model.CacheIOError{Key: pkg.Key(), Op: "write", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &model.CacheIOError{Key: pkg.Key(), Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &model.CacheIOError{Key: pkg.Key(), Op: "write", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &model.CacheIOError{Key: pkg.Key(), Op: "write", Err: err}
	}
	return nil
}

// path derives the entry file name from the sanitized scan key.
func (c *ResultCache) path(pkg model.PackageIdentity) string {
	return filepath.Join(c.dir, util.SanitizeKey(pkg.Key())+".json")
}
