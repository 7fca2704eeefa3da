package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/corpusflow/blob"
	"github.com/lodestone-ai/corpusflow/storage"
	badgerstore "github.com/lodestone-ai/corpusflow/storage/badger"
)

func newTestRepos(t *testing.T) (storage.CacheRepository, storage.BatchRepository, storage.VectorRepository) {
	t.Helper()
	cache, batches, vectors, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return cache, batches, vectors
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	cfg.ItemTimeout = 5 * time.Second
	cfg.ChunkSize = 200
	cfg.ChunkOverlap = 20
	cfg.ResultsDir = t.TempDir()
	cfg.Dimensions = 384
	return cfg
}

func newTestCorpus(t *testing.T) (string, *blob.FSStore) {
	t.Helper()
	root := t.TempDir()
	store, err := blob.NewFSStore(root)
	require.NoError(t, err)
	return root, store
}

func writeCorpusFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func removeCorpusFile(t *testing.T, root, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(rel))))
}
