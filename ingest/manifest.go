package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lodestone-ai/corpusflow/core"
)

// ManifestPath returns where the manifest for an execution is written.
func ManifestPath(dir, executionID string) string {
	return filepath.Join(dir, executionID+".manifest.jsonl")
}

// ResultPath returns where the result manifest for an execution is written.
func ResultPath(dir, executionID string) string {
	return filepath.Join(dir, executionID+".results.jsonl")
}

// WriteManifest writes manifest items as JSONL, one item per line, creating
// parent directories as needed. An empty item slice produces an empty file.
func WriteManifest(path string, items []core.ManifestItem) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range items {
		if err := enc.Encode(&items[i]); err != nil {
			return fmt.Errorf("encode manifest item %s: %w", items[i].URI, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush manifest: %w", err)
	}
	return f.Sync()
}

// ReadManifest reads a JSONL manifest back into items.
func ReadManifest(path string) ([]core.ManifestItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var items []core.ManifestItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item core.ManifestItem
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, fmt.Errorf("parse manifest line: %w", err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return items, nil
}

// WriteResults writes the full result set as JSONL, replacing any existing
// file. An empty result slice produces an empty file.
func WriteResults(path string, results []*core.ItemResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, result := range results {
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode result for %s: %w", result.URI, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}
	return f.Sync()
}

// ResultWriter appends item results to a JSONL file as they are produced.
// Safe for concurrent use; the file is opened in append mode so a resumed
// batch keeps earlier lines.
type ResultWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewResultWriter opens (or creates) the result file for appending.
func NewResultWriter(path string) (*ResultWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	return &ResultWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// Append writes one result line.
func (w *ResultWriter) Append(result *core.ItemResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(result); err != nil {
		return fmt.Errorf("encode result for %s: %w", result.URI, err)
	}
	return nil
}

// Close syncs and closes the result file.
func (w *ResultWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// ReadResults reads a JSONL result file back into results.
func ReadResults(path string) ([]core.ItemResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	defer f.Close()

	var results []core.ItemResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var result core.ItemResult
		if err := json.Unmarshal(line, &result); err != nil {
			return nil, fmt.Errorf("parse result line: %w", err)
		}
		results = append(results, result)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return results, nil
}
