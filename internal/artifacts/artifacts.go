// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package artifacts manages the lifecycle of files an estimate run leaves
// behind on disk — rendered PDFs, wiring-diagram images, and
// vendor-portal screenshots captured by browser-driven research adapters.
// Everything lives under one root directory, with every relative path
// confined through internal/fsutil before it touches the filesystem.
package artifacts

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/svcadvisor/estimate-pipeline/internal/fsutil"
	"github.com/svcadvisor/estimate-pipeline/internal/log"
)

// DefaultMaxAge is how long a PDF or screenshot may sit in the artifact
// directory before the sweeper removes it.
const DefaultMaxAge = 24 * time.Hour

// DefaultMaxScreenshots caps how many screenshot files are retained;
// oldest-first eviction once the cap is exceeded.
const DefaultMaxScreenshots = 200

// Store roots every artifact this process writes under one directory and
// enforces the sweep policy above.
type Store struct {
	root            string
	maxAge          time.Duration
	maxScreenshots  int
	now             func() time.Time
}

// Config configures a Store. Zero values fall back to the defaults above.
type Config struct {
	Root           string
	MaxAge         time.Duration
	MaxScreenshots int
}

// New creates a Store rooted at cfg.Root, creating the directory (and its
// pdfs/ and screenshots/ subdirectories) if they do not already exist.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		cfg.Root = filepath.Join(os.TempDir(), "svcadvisor-artifacts")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxScreenshots <= 0 {
		cfg.MaxScreenshots = DefaultMaxScreenshots
	}
	s := &Store{root: cfg.Root, maxAge: cfg.MaxAge, maxScreenshots: cfg.MaxScreenshots, now: time.Now}
	for _, sub := range []string{"", "pdfs", "screenshots", "diagrams"} {
		if err := os.MkdirAll(filepath.Join(s.root, sub), 0o755); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Root returns the artifact directory's root path.
func (s *Store) Root() string { return s.root }

// PDFPath returns the confined path a run's customer PDF should be
// written to. The caller (out of scope here — PDF rendering is a Non-goal)
// is responsible for actually writing the file.
func (s *Store) PDFPath(runID string) (string, error) {
	return fsutil.ConfineRelPath(s.root, filepath.Join("pdfs", runID+".pdf"))
}

// ScreenshotPath returns the confined path for the nth screenshot a
// browser-driven research adapter captures during runID.
func (s *Store) ScreenshotPath(runID, platform string, n int) (string, error) {
	name := filepath.Join("screenshots", runID+"-"+platform+"-"+strconv.Itoa(n)+".png")
	return fsutil.ConfineRelPath(s.root, name)
}

// DiagramPath returns the confined path for a wiring-diagram image
// downloaded for runID.
func (s *Store) DiagramPath(runID, topic string) (string, error) {
	name := filepath.Join("diagrams", runID+"-"+topic+".png")
	return fsutil.ConfineRelPath(s.root, name)
}

// Sweep removes artifacts older than the configured max age, then caps the
// screenshots directory to maxScreenshots by deleting the oldest excess
// files. It returns the number of files removed. Safe to call on a timer.
func (s *Store) Sweep() int {
	removed := 0
	cutoff := s.now().Add(-s.maxAge)

	for _, sub := range []string{"pdfs", "screenshots", "diagrams"} {
		dir := filepath.Join(s.root, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
					removed++
				}
			}
		}
	}

	removed += s.capScreenshots()

	if removed > 0 {
		log.L().Info().Int("removed", removed).Str("root", s.root).Msg("artifact sweep completed")
	}
	return removed
}

// capScreenshots deletes the oldest screenshots past maxScreenshots.
func (s *Store) capScreenshots() int {
	dir := filepath.Join(s.root, "screenshots")
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) <= s.maxScreenshots {
		return 0
	}

	type fileInfo struct {
		name    string
		modTime time.Time
	}
	files := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	excess := len(files) - s.maxScreenshots
	removed := 0
	for i := 0; i < excess; i++ {
		if err := os.Remove(filepath.Join(dir, files[i].name)); err == nil {
			removed++
		}
	}
	return removed
}

// RunLoop runs Sweep on interval until stop is closed. The caller owns
// the goroutine boundary; RunLoop blocks.
func (s *Store) RunLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-stop:
			return
		}
	}
}
