package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// Sweep reports one cleanup pass: files deleted per directory.
type Sweep map[string]int

// Total returns the number of deleted files.
func (s Sweep) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Cleanup deletes files in the upload and output directories that were last
// modified more than the retention window before now. Subdirectories and
// missing directories are skipped.
func (s *Store) Cleanup(now time.Time) (Sweep, error) {
	sweep := Sweep{}
	for _, dir := range []string{s.cfg.UploadDir, s.cfg.OutputDir} {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return sweep, err
		}
		deleted := 0
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue // removed since ReadDir
			}
			if now.Sub(info.ModTime()) <= s.cfg.Retention {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("cleanup could not delete file", "path", path, "err", err)
				continue
			}
			deleted++
		}
		if deleted > 0 {
			s.logger.Info("cleanup removed files", "dir", dir, "count", deleted)
		}
		sweep[dir] = deleted
	}
	return sweep, nil
}

// RunCleanup calls Cleanup every interval until ctx is done. The first pass
// runs immediately.
func (s *Store) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	s.logger.Debug("cleanup started", "interval", interval, "retention", s.cfg.Retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Cleanup(time.Now()); err != nil {
			s.logger.Error("cleanup failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
