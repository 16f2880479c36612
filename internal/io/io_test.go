package io

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestIsSupportedImage(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSupportedImage("/tmp/a.PNG"))
	assert.True(t, IsSupportedImage("scan.tiff"))
	assert.False(t, IsSupportedImage("notes.txt"))
	assert.False(t, IsSupportedImage("dir.png/file"))
}

func TestImageName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cells", ImageName("/data/cells.tif"))
	assert.Equal(t, "a.b", ImageName("a.b.png"))
}

func TestSaveAndLoadImage(t *testing.T) {
	t.Parallel()

	loader := NewImageLoader(nil)
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 8, 8, gocv.MatTypeCV8UC3)
	defer img.Close()

	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, loader.SaveImage(img, path))

	got, err := loader.LoadImage(path)
	require.NoError(t, err)
	defer got.Close()
	assert.Equal(t, img.ToBytes(), got.ToBytes())

	_, err = loader.LoadImage(filepath.Join(t.TempDir(), "x.gif"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Error(t, loader.SaveImage(img, filepath.Join(t.TempDir(), "x.gif")))
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.json")

	require.NoError(t, WriteFileAtomic(path, func(w io.Writer) error {
		_, err := fmt.Fprint(w, "first")
		return err
	}))

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, _ = fmt.Fprint(w, "partial")
		return errors.New("encoder failed")
	})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.json")
	require.NoError(t, os.WriteFile(path, []byte("body"), 0o600))

	var got []byte
	require.NoError(t, ReadFile(path, func(r io.Reader) error {
		var err error
		got, err = io.ReadAll(r)
		return err
	}))
	assert.Equal(t, "body", string(got))

	assert.Error(t, ReadFile(path+".missing", func(io.Reader) error { return nil }))
}

func TestImportWatcherImportsJSONOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var (
		mu       sync.Mutex
		imported []string
	)
	w := NewImportWatcher(dir, func(path string) error {
		mu.Lock()
		defer mu.Unlock()
		imported = append(imported, filepath.Base(path))
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.json"), []byte("{}"), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(imported) == 1
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"p.json"}, imported)
}

func TestImportWatcherRetriesFailedImports(t *testing.T) {
	t.Parallel()

	w := NewImportWatcher(t.TempDir(), nil, nil)
	attempts := 0
	w.onImport = func(string) error {
		attempts++
		if attempts == 1 {
			return errors.New("half written")
		}
		return nil
	}

	path := filepath.Join(w.dir, "p.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	w.handle(path)
	w.handle(path)
	w.handle(path)

	assert.Equal(t, 2, attempts)
}
