package download

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Sweep deletes files under the download root that match any of the given
// glob patterns (doublestar syntax, e.g. "**/*.mp4") and have not been
// modified for maxAge. Media is normally deleted right after sending; the
// sweep catches leftovers from crashed or interrupted handlers.
func (d *Downloader) Sweep(patterns []string, maxAge time.Duration) (int, error) {
	root := os.DirFS(d.rootDir)
	removed := 0

	for _, pattern := range patterns {
		matches, err := doublestar.Glob(root, pattern)
		if err != nil {
			return removed, fmt.Errorf("glob %s: %w", pattern, err)
		}

		for _, match := range matches {
			path := filepath.Join(d.rootDir, match)
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			if time.Since(info.ModTime()) < maxAge {
				continue
			}

			if err := os.Remove(path); err != nil {
				d.logger.Warnf("Failed to remove stale file %s: %s", path, err)
				continue
			}
			d.logger.Debugf("Removed stale file %s", path)
			removed++
		}
	}

	return removed, nil
}
