// Copyright 2025 Lodestone AI
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lodestone-ai/corpusflow/core"
)

// MetadataSuffix names the sidecar file carrying per-object metadata.
// The sidecar for "docs/a.txt" is "docs/a.txt.metadata.json".
const MetadataSuffix = ".metadata.json"

// FSStore is a filesystem-backed corpus store rooted at a directory.
type FSStore struct {
	root            string
	hashConcurrency int
	logger          *slog.Logger
}

// FSOption configures an FSStore.
type FSOption func(*FSStore)

// WithHashConcurrency bounds the number of files fingerprinted in parallel
// during List. Default is runtime.NumCPU().
func WithHashConcurrency(n int) FSOption {
	return func(s *FSStore) {
		if n < 1 {
			n = 1
		}
		s.hashConcurrency = n
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) FSOption {
	return func(s *FSStore) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// NewFSStore creates a filesystem store rooted at root.
// The root must exist and be a directory.
func NewFSStore(root string, opts ...FSOption) (*FSStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("blob: stat corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("blob: corpus root %q is not a directory", root)
	}

	s := &FSStore{
		root:            root,
		hashConcurrency: runtime.NumCPU(),
		logger:          slog.Default().With("component", "fs-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List walks the root directory and returns every regular file as an Object,
// fingerprinting contents concurrently. Metadata sidecars and hidden files
// are excluded. The result is ordered by URI.
func (s *FSStore) List(ctx context.Context) ([]Object, error) {
	var uris []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, MetadataSuffix) {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		uris = append(uris, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blob: list corpus: %w", err)
	}

	objects := make([]Object, len(uris))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.hashConcurrency)
	for i, uri := range uris {
		i, uri := i, uri
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			obj, err := s.describe(uri)
			if err != nil {
				return err
			}
			objects[i] = obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].URI < objects[j].URI })
	s.logger.Debug("listed corpus", "root", s.root, "objects", len(objects))
	return objects, nil
}

func (s *FSStore) describe(uri string) (Object, error) {
	path, err := s.resolve(uri)
	if err != nil {
		return Object{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Object{}, fmt.Errorf("blob: read %s: %w", uri, err)
	}
	return Object{
		URI:         uri,
		Fingerprint: core.Fingerprint(data),
		ContentType: InferContentType(uri),
		Size:        int64(len(data)),
	}, nil
}

// Fetch returns the content of the object at uri.
func (s *FSStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	path, err := s.resolve(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, uri)
		}
		return nil, fmt.Errorf("blob: read %s: %w", uri, err)
	}
	return data, nil
}

// FetchMetadata returns the parsed metadata sidecar for uri, or nil if the
// object has no sidecar.
func (s *FSStore) FetchMetadata(ctx context.Context, uri string) (map[string]string, error) {
	path, err := s.resolve(uri + MetadataSuffix)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("blob: read metadata for %s: %w", uri, err)
	}

	metadata := make(map[string]string)
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("blob: parse metadata for %s: %w", uri, err)
	}
	return metadata, nil
}

// Remove deletes the object at uri and its metadata sidecar if present.
func (s *FSStore) Remove(ctx context.Context, uri string) error {
	path, err := s.resolve(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: remove %s: %w", uri, err)
	}
	sidecar, err := s.resolve(uri + MetadataSuffix)
	if err != nil {
		return err
	}
	if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: remove metadata for %s: %w", uri, err)
	}
	return nil
}

// resolve maps a URI to an absolute path under root, rejecting escapes.
func (s *FSStore) resolve(uri string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(uri))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("blob: uri %q escapes store root", uri)
	}
	return filepath.Join(s.root, cleaned), nil
}
