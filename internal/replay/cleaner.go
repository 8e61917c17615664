package replay

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"planetarena/server/internal/logging"
)

// RetentionPolicy bounds the bundles kept on disk. Zero fields are unlimited.
type RetentionPolicy struct {
	MaxMatches int
	MaxAge     time.Duration
}

// StorageStats summarises the disk footprint of persisted bundles.
type StorageStats struct {
	Matches   int       `json:"matches"`
	Bytes     int64     `json:"bytes"`
	Removed   int       `json:"removed"`
	LastSweep time.Time `json:"lastSweep"`
}

// Cleaner prunes replay bundles according to a retention policy. A bundle is
// any directory under the root holding a manifest; other entries are ignored.
type Cleaner struct {
	mu      sync.RWMutex
	dir     string
	policy  RetentionPolicy
	log     *logging.Logger
	now     func() time.Time
	protect func() string
	stats   StorageStats
}

// NewCleaner constructs a cleaner for dir. protect, when set, names a bundle
// directory that must survive every sweep (the one being written).
func NewCleaner(dir string, policy RetentionPolicy, protect func() string, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now, protect: protect}
}

// Run sweeps once immediately and then every interval until ctx ends.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// RunOnce performs a single sweep.
func (c *Cleaner) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

// Stats returns the result of the last sweep.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type bundle struct {
	path    string
	size    int64
	modTime time.Time
}

func (c *Cleaner) sweep() {
	if strings.TrimSpace(c.dir) == "" {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("replay retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	protected := ""
	if c.protect != nil {
		protected = filepath.Clean(c.protect())
	}

	bundles := c.collect(entries)
	now := c.now()
	stats := StorageStats{LastSweep: now}
	for _, b := range bundles {
		keep := b.path == protected
		var reason string
		if !keep {
			reason = c.removalReason(b, now, stats.Matches)
			keep = reason == ""
		}
		if !keep {
			if err := os.RemoveAll(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				c.log.Warn("replay retention removal failed", logging.Error(err), logging.String("bundle", b.path))
				keep = true
			} else {
				stats.Removed++
				c.log.Info("replay retention removed bundle", logging.String("bundle", filepath.Base(b.path)), logging.String("reason", reason))
			}
		}
		if keep {
			stats.Matches++
			stats.Bytes += b.size
		}
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

// collect returns bundles newest first.
func (c *Cleaner) collect(entries []os.DirEntry) []bundle {
	bundles := make([]bundle, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		if _, err := os.Stat(filepath.Join(path, manifestName)); err != nil {
			continue
		}
		size, modTime, err := directoryUsage(path)
		if err != nil {
			c.log.Warn("replay retention size failed", logging.Error(err), logging.String("bundle", path))
			continue
		}
		bundles = append(bundles, bundle{path: path, size: size, modTime: modTime})
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].modTime.After(bundles[j].modTime) })
	return bundles
}

func (c *Cleaner) removalReason(b bundle, now time.Time, kept int) string {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(b.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxMatches > 0 && kept >= c.policy.MaxMatches {
		reasons = append(reasons, fmt.Sprintf(">=%d matches", c.policy.MaxMatches))
	}
	return strings.Join(reasons, ", ")
}

// directoryUsage sums file sizes and finds the newest modification time.
func directoryUsage(root string) (int64, time.Time, error) {
	var (
		total  int64
		newest time.Time
	)
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		if !d.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, newest, err
}
