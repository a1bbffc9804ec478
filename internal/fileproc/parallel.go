// Package fileproc provides concurrent file loading utilities.
package fileproc

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e ProcessingError) Unwrap() error {
	return e.Err
}

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to load (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e *ProcessingErrors) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		out[i] = pe
	}
	return out
}

// sortByIndex orders errors by input position so messages are reproducible.
func (e *ProcessingErrors) sortByIndex(index map[string]int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sort.SliceStable(e.Errors, func(i, j int) bool {
		return index[e.Errors[i].Path] < index[e.Errors[j].Path]
	})
}

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
const DefaultWorkerMultiplier = 2

// ProgressFunc is called after each file is processed.
type ProgressFunc func()

// MaxSizeExceededError reports a file larger than the configured limit.
type MaxSizeExceededError struct {
	Size  int64
	Limit int64
}

func (e *MaxSizeExceededError) Error() string {
	return fmt.Sprintf("file is %d bytes, limit is %d", e.Size, e.Limit)
}

// Options configures LoadFiles.
type Options struct {
	// MaxWorkers bounds concurrency; <= 0 means 2x NumCPU.
	MaxWorkers int
	// MaxFileSize rejects larger files; 0 disables the check.
	MaxFileSize int64
	OnProgress  ProgressFunc
}

// LoadFiles reads and decodes files in parallel. Results keep the order of files so
// that callers can build deterministic state from them; a failed file leaves the zero
// value in its slot and is reported in the returned *ProcessingErrors.
func LoadFiles[T any](ctx context.Context, files []string, opts Options, fn func(path string, content []byte) (T, error)) ([]T, error) {
	if len(files) == 0 {
		return nil, nil
	}

	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() * DefaultWorkerMultiplier
	}

	results := make([]T, len(files))
	errs := &ProcessingErrors{}
	index := make(map[string]int, len(files))

	p := pool.New().WithMaxGoroutines(maxWorkers).WithContext(ctx)
	for i, path := range files {
		index[path] = i
		p.Go(func(ctx context.Context) error {
			defer func() {
				if opts.OnProgress != nil {
					opts.OnProgress()
				}
			}()

			select {
			case <-ctx.Done():
				errs.Add(path, ctx.Err())
				return ctx.Err()
			default:
			}

			content, err := readLimited(path, opts.MaxFileSize)
			if err != nil {
				errs.Add(path, err)
				return nil
			}

			result, err := fn(path, content)
			if err != nil {
				errs.Add(path, err)
				return nil
			}
			results[i] = result
			return nil
		})
	}
	_ = p.Wait()

	if !errs.HasErrors() {
		return results, nil
	}
	errs.sortByIndex(index)
	return results, errs
}

func readLimited(path string, limit int64) ([]byte, error) {
	if limit > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.Size() > limit {
			return nil, &MaxSizeExceededError{Size: info.Size(), Limit: limit}
		}
	}
	return os.ReadFile(path)
}
