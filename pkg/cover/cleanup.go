package cover

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pagebound/jacket/util/log"
)

// Cleanup deletes regular files older than the configured max age. It is
// best-effort: individual failures are logged and skipped, and overlapping
// runs collapse into one.
func (c *DiskCache) Cleanup() {
	if !c.enabled {
		return
	}
	if !c.cleanupBusy.CompareAndSwap(false, true) {
		log.Debugf("disk cache: cleanup already running, skipping")
		return
	}
	defer c.cleanupBusy.Set(false)

	cutoff := time.Now().Add(-c.maxAge)
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		log.Errorf("disk cache: cleanup cannot read %s: %v", c.dir, err)
		return
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			log.Warnf("disk cache: cleanup stat %s: %v", e.Name(), err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			log.Warnf("disk cache: cleanup remove %s: %v", e.Name(), err)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Printf("disk cache: removed %d expired files from %s", removed, c.dirName)
	}
}
