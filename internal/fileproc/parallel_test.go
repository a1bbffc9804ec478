package fileproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/iltrim/internal/testutil"
)

func writeFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("asm%02d.yaml", i))
		testutil.WriteFile(t, paths[i], fmt.Sprintf("name: A%d\n", i))
	}
	return paths
}

func TestLoadFilesKeepsInputOrder(t *testing.T) {
	paths := writeFiles(t, 25)

	var ticks atomic.Int32
	results, err := LoadFiles(context.Background(), paths, Options{MaxWorkers: 4, OnProgress: func() { ticks.Add(1) }},
		func(path string, content []byte) (string, error) {
			return strings.TrimSpace(string(content)), nil
		})
	require.NoError(t, err)
	require.Len(t, results, 25)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("name: A%d", i), r)
	}
	assert.Equal(t, int32(25), ticks.Load())
}

func TestLoadFilesEmpty(t *testing.T) {
	results, err := LoadFiles(context.Background(), nil, Options{}, func(string, []byte) (int, error) { return 1, nil })
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestLoadFilesCollectsErrorsInOrder(t *testing.T) {
	paths := writeFiles(t, 6)
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	paths = append([]string{missing}, paths...)
	errBad := errors.New("bad document")

	results, err := LoadFiles(context.Background(), paths, Options{}, func(path string, content []byte) (int, error) {
		if strings.HasSuffix(path, "asm03.yaml") {
			return 0, errBad
		}
		return len(content), nil
	})
	require.Error(t, err)
	assert.Len(t, results, 7)
	assert.ErrorIs(t, err, errBad)
	assert.ErrorIs(t, err, os.ErrNotExist)

	var pe *ProcessingErrors
	require.ErrorAs(t, err, &pe)
	require.Len(t, pe.Errors, 2)
	assert.Equal(t, missing, pe.Errors[0].Path)
	assert.Contains(t, pe.Error(), "2 files failed to load")
}

func TestLoadFilesSizeLimit(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.yaml")
	large := filepath.Join(dir, "large.yaml")
	testutil.WriteFile(t, small, "name: S\n")
	testutil.WriteFile(t, large, "name: L\n"+strings.Repeat("#", 200))

	_, err := LoadFiles(context.Background(), []string{small, large}, Options{MaxFileSize: 100},
		func(string, []byte) (bool, error) { return true, nil })
	var tooBig *MaxSizeExceededError
	require.ErrorAs(t, err, &tooBig)
	assert.Equal(t, int64(100), tooBig.Limit)
}

func TestLoadFilesCancelled(t *testing.T) {
	paths := writeFiles(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadFiles(ctx, paths, Options{}, func(string, []byte) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.Canceled)
}
