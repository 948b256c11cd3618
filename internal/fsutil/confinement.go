// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil confines artifact paths (PDFs, vendor-portal
// screenshots) to the artifact root, so a run identifier or file name
// arriving over the wire can never address a path outside it.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfineRelPath joins root and relTarget and guarantees the result is
// physically underneath root once symlinks are resolved. relTarget must
// be relative; backslashes are rejected outright so Windows-style
// separators cannot smuggle a traversal past the segment checks.
func ConfineRelPath(root, relTarget string) (string, error) {
	if strings.Contains(relTarget, `\`) {
		return "", fmt.Errorf("path contains backslash: %s", relTarget)
	}

	rel := filepath.Clean(relTarget)
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("target path must be relative: %s", relTarget)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt: %s", relTarget)
	}

	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}

	return verifyWithinRoot(realRoot, filepath.Join(realRoot, rel))
}

// resolveRoot returns root with symlinks evaluated. A root that does not
// exist yet resolves to its absolute path, so confinement works before
// the first artifact is written.
func resolveRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return absRoot, nil
		}
		return absRoot, nil
	}
	return realRoot, nil
}

// verifyWithinRoot resolves candidate's symlinks and fails when the real
// path lands outside realRoot.
func verifyWithinRoot(realRoot, candidate string) (string, error) {
	realPath, err := resolveCandidate(candidate)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root via symlinks: %s", realPath)
	}
	return realPath, nil
}

// resolveCandidate evaluates symlinks on candidate when it exists, and on
// its parent when it is about to be created. Resolution failures on an
// existing path fail closed.
func resolveCandidate(candidate string) (string, error) {
	if _, err := os.Lstat(candidate); err == nil {
		realPath, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
		return realPath, nil
	}

	// Not created yet: resolve the parent so a symlinked directory can't
	// redirect the write.
	dir := filepath.Dir(candidate)
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if _, statErr := os.Stat(dir); statErr == nil {
			return "", fmt.Errorf("failed to resolve parent path: %w", err)
		}
		// Parent doesn't exist either; the Rel check still guards the
		// lexical path.
		return candidate, nil
	}
	return filepath.Join(realDir, filepath.Base(candidate)), nil
}
