package badger

import (
	"fmt"

	"github.com/lodestone-ai/corpusflow/core"
)

// Key prefixes for different data types
const (
	cacheEntryPrefix  = "cent"
	cacheStatusPrefix = "csts"
	batchRecordPrefix = "brec"
	batchResultPrefix = "bres"
	chunkPrefix       = "vchk"
	collectionMetaKey = "vcol:meta"
)

// makeCacheEntryKey generates a key for a cache entry by document URI.
func makeCacheEntryKey(uri string) []byte {
	return []byte(cacheEntryPrefix + ":" + uri)
}

// makeCacheStatusKey generates a composite key for the status secondary
// index. Format: prefix:status:uri. Keys under one status prefix sort by
// URI, which gives ScanByStatus its deterministic, restartable order.
func makeCacheStatusKey(status core.Status, uri string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s", cacheStatusPrefix, int(status), uri))
}

// makeCacheStatusPrefix generates the scan prefix for one status.
func makeCacheStatusPrefix(status core.Status) []byte {
	return []byte(fmt.Sprintf("%s:%d:", cacheStatusPrefix, int(status)))
}

// makeBatchRecordKey generates a key for a batch execution record.
func makeBatchRecordKey(executionID string) []byte {
	return []byte(batchRecordPrefix + ":" + executionID)
}

// makeBatchResultKey generates a composite key for a per-item result.
// Format: prefix:executionID:uri, so results for one execution share a
// prefix and sort by document URI.
func makeBatchResultKey(executionID, uri string) []byte {
	return []byte(batchResultPrefix + ":" + executionID + ":" + uri)
}

// makeBatchResultPrefix generates the scan prefix for one execution's results.
func makeBatchResultPrefix(executionID string) []byte {
	return []byte(batchResultPrefix + ":" + executionID + ":")
}

// makeChunkKey generates a composite key for a stored chunk.
// Format: prefix:sourceURI#position, so all chunks of one source document
// share a prefix and can be removed together.
func makeChunkKey(sourceURI string, position int) []byte {
	return []byte(fmt.Sprintf("%s:%s#%d", chunkPrefix, sourceURI, position))
}

// makeChunkSourcePrefix generates the scan prefix for one source document.
func makeChunkSourcePrefix(sourceURI string) []byte {
	return []byte(chunkPrefix + ":" + sourceURI + "#")
}
