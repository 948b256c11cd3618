// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PathsAreConfined(t *testing.T) {
	s, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)

	pdf, err := s.PDFPath("run-1")
	require.NoError(t, err)
	assert.Contains(t, pdf, "pdfs")

	shot, err := s.ScreenshotPath("run-1", "prodemand", 3)
	require.NoError(t, err)
	assert.Contains(t, shot, "run-1-prodemand-3.png")

	_, err = s.PDFPath("../../etc/passwd")
	assert.Error(t, err)
}

func TestStore_SweepRemovesOldArtifacts(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{Root: root, MaxAge: time.Minute})
	require.NoError(t, err)

	old := filepath.Join(root, "pdfs", "old.pdf")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	oldTime := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, oldTime, oldTime))

	fresh := filepath.Join(root, "pdfs", "fresh.pdf")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	removed := s.Sweep()
	assert.Equal(t, 1, removed)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestStore_CapsScreenshotCount(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{Root: root, MaxAge: time.Hour, MaxScreenshots: 2})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		p := filepath.Join(root, "screenshots", "shot"+string(rune('a'+i))+".png")
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	s.Sweep()

	entries, err := os.ReadDir(filepath.Join(root, "screenshots"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
