package sources

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vulnscout/vulnscout-backend/model"
	"github.com/vulnscout/vulnscout-backend/util"
)

// rawCache persists one adapter's raw advisory responses so repeated scans
// of the same package do not re-query the upstream. Separate from the
// canonical result cache; the TTL here is short (hours, not days).
type rawCache struct {
	dir    string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

type rawEntry struct {
	WrittenAt  time.Time           `json:"timestamp"`
	Advisories []model.RawAdvisory `json:"payload"`
}

// newRawCache creates a per-source cache below a base dir. A nil cache is
// returned when dir is empty (caching disabled, e.g. in tests).
func newRawCache(baseDir, sourceName string, ttl time.Duration, logger *zap.Logger) *rawCache {
	if baseDir == "" {
		return nil
	}
	dir := filepath.Join(baseDir, sourceName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("raw cache disabled", zap.String("source", sourceName), zap.Error(err))
		return nil
	}
	return &rawCache{dir: dir, ttl: ttl, logger: logger, now: time.Now}
}

func (c *rawCache) read(pkg model.PackageIdentity) ([]model.RawAdvisory, bool) {
	if c == nil {
		return nil, false
	}
	content, err := os.ReadFile(c.path(pkg))
	if err != nil {
		return nil, false
	}
	var entry rawEntry
	if err := json.Unmarshal(content, &entry); err != nil {
		return nil, false
	}
	if c.now().Sub(entry.WrittenAt) > c.ttl {
		os.Remove(c.path(pkg))
		return nil, false
	}
	return entry.Advisories, true
}

func (c *rawCache) write(pkg model.PackageIdentity, advisories []model.RawAdvisory) {
	if c == nil {
		return
	}
	content, err := json.Marshal(rawEntry{WrittenAt: c.now(), Advisories: advisories})
	if err != nil {
		return
	}
	tmp, err := os.CreateTemp(c.dir, ".raw-*.tmp")
	if err != nil {
		c.logger.Warn("raw cache write failed", zap.String("key", pkg.Key()), zap.Error(err))
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return
	}
	if err := os.Rename(tmpName, c.path(pkg)); err != nil {
		os.Remove(tmpName)
		c.logger.Warn("raw cache write failed", zap.String("key", pkg.Key()), zap.Error(err))
	}
}

func (c *rawCache) path(pkg model.PackageIdentity) string {
	return filepath.Join(c.dir, util.SanitizeKey(pkg.Key())+".json")
}
