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


package storage

import (
	"sort"
	"time"

	"github.com/lodestone-ai/corpusflow/core"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the values stored in BadgerDB. Timestamps are encoded
// as Unix microseconds, with the zero time encoded as 0.

// MarshalCacheEntry serializes a CacheEntry to bytes.
func MarshalCacheEntry(entry *core.CacheEntry) []byte {
	buf := make([]byte, CacheEntryMUS.Size(*entry))
	CacheEntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalCacheEntry deserializes a CacheEntry from bytes.
func UnmarshalCacheEntry(data []byte) (*core.CacheEntry, error) {
	entry, _, err := CacheEntryMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarshalBatchRecord serializes a BatchRecord to bytes.
func MarshalBatchRecord(record *core.BatchRecord) []byte {
	buf := make([]byte, BatchRecordMUS.Size(*record))
	BatchRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalBatchRecord deserializes a BatchRecord from bytes.
func UnmarshalBatchRecord(data []byte) (*core.BatchRecord, error) {
	record, _, err := BatchRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarshalItemResult serializes an ItemResult to bytes.
func MarshalItemResult(result *core.ItemResult) []byte {
	buf := make([]byte, ItemResultMUS.Size(*result))
	ItemResultMUS.Marshal(*result, buf)
	return buf
}

// UnmarshalItemResult deserializes an ItemResult from bytes.
func UnmarshalItemResult(data []byte) (*core.ItemResult, error) {
	result, _, err := ItemResultMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, ChunkMUS.Size(*chunk))
	ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// MarshalSchemaDescriptor serializes a SchemaDescriptor to bytes.
func MarshalSchemaDescriptor(desc *core.SchemaDescriptor) []byte {
	buf := make([]byte, SchemaDescriptorMUS.Size(*desc))
	SchemaDescriptorMUS.Marshal(*desc, buf)
	return buf
}

// UnmarshalSchemaDescriptor deserializes a SchemaDescriptor from bytes.
func UnmarshalSchemaDescriptor(data []byte) (*core.SchemaDescriptor, error) {
	desc, _, err := SchemaDescriptorMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &desc, nil
}

// CacheEntryMUS serializes core.CacheEntry values.
var CacheEntryMUS = cacheEntrySer{}

// BatchRecordMUS serializes core.BatchRecord values.
var BatchRecordMUS = batchRecordSer{}

// ItemResultMUS serializes core.ItemResult values.
var ItemResultMUS = itemResultSer{}

// ChunkMUS serializes core.Chunk values.
var ChunkMUS = chunkSer{}

type cacheEntrySer struct{}

func (cacheEntrySer) Marshal(v core.CacheEntry, bs []byte) (n int) {
	n = ord.String.Marshal(v.URI, bs)
	n += ord.String.Marshal(v.Fingerprint, bs[n:])
	n += ord.String.Marshal(v.ContentType, bs[n:])
	n += varint.Int64.Marshal(v.Size, bs[n:])
	n += varint.Int.Marshal(int(v.Status), bs[n:])
	n += varint.Uint64.Marshal(v.Version, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	n += marshalTime(v.IngestedAt, bs[n:])
	return n
}

func (cacheEntrySer) Unmarshal(bs []byte) (v core.CacheEntry, n int, err error) {
	var m int
	if v.URI, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.Fingerprint, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.ContentType, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Size, m, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	var status int
	if status, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.Status = core.Status(status)
	n += m
	if v.Version, m, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.UpdatedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += m
	if v.IngestedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (cacheEntrySer) Size(v core.CacheEntry) (size int) {
	size = ord.String.Size(v.URI)
	size += ord.String.Size(v.Fingerprint)
	size += ord.String.Size(v.ContentType)
	size += varint.Int64.Size(v.Size)
	size += varint.Int.Size(int(v.Status))
	size += varint.Uint64.Size(v.Version)
	size += sizeTime(v.UpdatedAt)
	size += sizeTime(v.IngestedAt)
	return size
}

type batchRecordSer struct{}

func (batchRecordSer) Marshal(v core.BatchRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.ExecutionID, bs)
	n += varint.Int.Marshal(int(v.Stage), bs[n:])
	n += ord.String.Marshal(v.ManifestPath, bs[n:])
	n += ord.String.Marshal(v.ResultPath, bs[n:])
	n += marshalTime(v.StartedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (batchRecordSer) Unmarshal(bs []byte) (v core.BatchRecord, n int, err error) {
	var m int
	if v.ExecutionID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	var stage int
	if stage, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.Stage = core.Stage(stage)
	n += m
	if v.ManifestPath, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.ResultPath, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.StartedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += m
	if v.UpdatedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (batchRecordSer) Size(v core.BatchRecord) (size int) {
	size = ord.String.Size(v.ExecutionID)
	size += varint.Int.Size(int(v.Stage))
	size += ord.String.Size(v.ManifestPath)
	size += ord.String.Size(v.ResultPath)
	size += sizeTime(v.StartedAt)
	size += sizeTime(v.UpdatedAt)
	return size
}

type itemResultSer struct{}

func (itemResultSer) Marshal(v core.ItemResult, bs []byte) (n int) {
	n = ord.String.Marshal(v.URI, bs)
	n += varint.Int.Marshal(int(v.Outcome), bs[n:])
	n += varint.Int.Marshal(v.UnitsProduced, bs[n:])
	n += ord.String.Marshal(v.Error, bs[n:])
	n += varint.Int.Marshal(v.Attempts, bs[n:])
	return n
}

func (itemResultSer) Unmarshal(bs []byte) (v core.ItemResult, n int, err error) {
	var m int
	if v.URI, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	var outcome int
	if outcome, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.Outcome = core.Outcome(outcome)
	n += m
	if v.UnitsProduced, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Error, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Attempts, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (itemResultSer) Size(v core.ItemResult) (size int) {
	size = ord.String.Size(v.URI)
	size += varint.Int.Size(int(v.Outcome))
	size += varint.Int.Size(v.UnitsProduced)
	size += ord.String.Size(v.Error)
	size += varint.Int.Size(v.Attempts)
	return size
}

type chunkSer struct{}

func (chunkSer) Marshal(v core.Chunk, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.ID), bs)
	n += ord.String.Marshal(v.SourceURI, bs[n:])
	n += varint.Int.Marshal(v.Position, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += marshalVector(v.Vector, bs[n:])
	n += ord.String.Marshal(v.Model, bs[n:])
	n += marshalStringMap(v.Metadata, bs[n:])
	return n
}

func (chunkSer) Unmarshal(bs []byte) (v core.Chunk, n int, err error) {
	var m int
	var id uint64
	if id, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.ID = core.ID(id)
	if v.SourceURI, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Position, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Text, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Vector, m, err = unmarshalVector(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Model, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Metadata, m, err = unmarshalStringMap(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (chunkSer) Size(v core.Chunk) (size int) {
	size = varint.Uint64.Size(uint64(v.ID))
	size += ord.String.Size(v.SourceURI)
	size += varint.Int.Size(v.Position)
	size += ord.String.Size(v.Text)
	size += sizeVector(v.Vector)
	size += ord.String.Size(v.Model)
	size += sizeStringMap(v.Metadata)
	return size
}

// SchemaDescriptorMUS serializes core.SchemaDescriptor values.
var SchemaDescriptorMUS = schemaDescriptorSer{}

type schemaDescriptorSer struct{}

func (schemaDescriptorSer) Marshal(v core.SchemaDescriptor, bs []byte) (n int) {
	n = ord.String.Marshal(v.Collection, bs)
	n += varint.Int.Marshal(v.Dimensions, bs[n:])
	n += ord.String.Marshal(v.Model, bs[n:])
	return n
}

func (schemaDescriptorSer) Unmarshal(bs []byte) (v core.SchemaDescriptor, n int, err error) {
	var m int
	if v.Collection, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.Dimensions, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Model, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	return
}

func (schemaDescriptorSer) Size(v core.SchemaDescriptor) (size int) {
	size = ord.String.Size(v.Collection)
	size += varint.Int.Size(v.Dimensions)
	size += ord.String.Size(v.Model)
	return size
}

func marshalVector(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) (v []float32, n int, err error) {
	var length, m int
	if length, n, err = varint.Int.Unmarshal(bs); err != nil {
		return
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]float32, length)
	for i := 0; i < length; i++ {
		if v[i], m, err = raw.Float32.Unmarshal(bs[n:]); err != nil {
			return
		}
		n += m
	}
	return
}

func sizeVector(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

// String maps are encoded as sorted key/value pairs so that serialization is
// deterministic for identical maps.
func marshalStringMap(m map[string]string, bs []byte) (n int) {
	keys := sortedKeys(m)
	n = varint.Int.Marshal(len(keys), bs)
	for _, k := range keys {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(m[k], bs[n:])
	}
	return n
}

func unmarshalStringMap(bs []byte) (m map[string]string, n int, err error) {
	var length, c int
	if length, n, err = varint.Int.Unmarshal(bs); err != nil {
		return
	}
	if length == 0 {
		return nil, n, nil
	}
	m = make(map[string]string, length)
	for i := 0; i < length; i++ {
		var k, v string
		if k, c, err = ord.String.Unmarshal(bs[n:]); err != nil {
			return
		}
		n += c
		if v, c, err = ord.String.Unmarshal(bs[n:]); err != nil {
			return
		}
		n += c
		m[k] = v
	}
	return
}

func sizeStringMap(m map[string]string) (size int) {
	size = varint.Int.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k)
		size += ord.String.Size(v)
	}
	return size
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func marshalTime(t time.Time, bs []byte) int {
	var micros int64
	if !t.IsZero() {
		micros = t.UnixMicro()
	}
	return varint.Int64.Marshal(micros, bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || micros == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	var micros int64
	if !t.IsZero() {
		micros = t.UnixMicro()
	}
	return varint.Int64.Size(micros)
}
