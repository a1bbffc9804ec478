package document

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/panbanda/iltrim/internal/fileproc"
	"github.com/panbanda/iltrim/pkg/metadata"
)

// Extensions lists the file extensions recognized as assembly documents.
var Extensions = []string{".yaml", ".yml", ".json"}

// LoadOptions configures Load.
type LoadOptions struct {
	MaxWorkers  int
	MaxFileSize int64
	OnProgress  func()
}

type loaded struct {
	doc  *Document
	mvid string
}

// Load decodes the given documents in parallel and builds one model from them.
// Assemblies are numbered in path order.
func Load(ctx context.Context, paths []string, opts LoadOptions) (*metadata.Model, error) {
	docs, err := fileproc.LoadFiles(ctx, paths, fileproc.Options{
		MaxWorkers:  opts.MaxWorkers,
		MaxFileSize: opts.MaxFileSize,
		OnProgress:  opts.OnProgress,
	}, func(path string, content []byte) (loaded, error) {
		doc, err := Decode(content)
		if err != nil {
			return loaded{}, err
		}
		return loaded{doc: doc, mvid: MVID(content)}, nil
	})
	if err != nil {
		return nil, err
	}

	b := metadata.NewBuilder()
	var errs []error
	for i, l := range docs {
		if err := l.doc.AddTo(b, paths[i], l.mvid); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", paths[i], err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return b.Build()
}

// MVID derives a stable module version id from the document content.
func MVID(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:16])
}

// Expand replaces directories in paths with the documents they contain, sorted by
// name. Plain files are kept as given.
func Expand(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && IsDocument(e.Name()) {
				found = append(found, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// IsDocument reports whether name has a document extension.
func IsDocument(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
