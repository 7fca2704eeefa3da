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

package ingest

import (
	"errors"
	"time"
)

// Config holds the tunables for one ingestion pipeline.
type Config struct {
	// Ceiling bounds the number of manifest items processed simultaneously.
	// At no point may more than Ceiling items be in flight.
	Ceiling int

	// MaxAttempts is the per-item retry budget, counting the first attempt.
	MaxAttempts int

	// RetryBaseDelay is the backoff base; the delay doubles on each retry.
	RetryBaseDelay time.Duration

	// ItemTimeout bounds a single worker invocation; every retry attempt
	// gets a fresh budget. Zero disables the timeout.
	ItemTimeout time.Duration

	// ChunkSize is the target chunk length in characters.
	ChunkSize int

	// ChunkOverlap is how many characters consecutive chunks share.
	ChunkOverlap int

	// ResultsDir is where manifest and result JSONL files are written.
	ResultsDir string

	// Collection names the vector collection batches write into.
	Collection string

	// Model is the embedding model identifier recorded with every chunk and
	// in the collection schema.
	Model string

	// Dimensions is the embedding vector length the collection enforces.
	Dimensions int

	// SupportedTypes are the content types admitted into a manifest. Objects
	// with other types are left out of the batch entirely.
	SupportedTypes []string
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Ceiling:        2,
		MaxAttempts:    3,
		RetryBaseDelay: time.Second,
		ItemTimeout:    2 * time.Minute,
		ChunkSize:      1000,
		ChunkOverlap:   200,
		ResultsDir:     "results",
		Collection:     "documents",
		Model:          "embeddinggemma",
		Dimensions:     768,
		SupportedTypes: []string{"text/plain", "text/markdown", "text/csv"},
	}
}

// Validate checks that the configuration is complete and coherent.
func (c *Config) Validate() error {
	if c.Ceiling < 1 {
		return errors.New("ingest config: Ceiling must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return errors.New("ingest config: MaxAttempts must be at least 1")
	}
	if c.RetryBaseDelay < 0 {
		return errors.New("ingest config: RetryBaseDelay must not be negative")
	}
	if c.ChunkSize < 1 {
		return errors.New("ingest config: ChunkSize must be at least 1")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return errors.New("ingest config: ChunkOverlap must be in [0, ChunkSize)")
	}
	if c.ResultsDir == "" {
		return errors.New("ingest config: ResultsDir is required")
	}
	if c.Collection == "" {
		return errors.New("ingest config: Collection is required")
	}
	if c.Model == "" {
		return errors.New("ingest config: Model is required")
	}
	if c.Dimensions < 1 {
		return errors.New("ingest config: Dimensions must be positive")
	}
	if len(c.SupportedTypes) == 0 {
		return errors.New("ingest config: SupportedTypes must not be empty")
	}
	return nil
}

// supportsType reports whether contentType is admitted into manifests.
func (c *Config) supportsType(contentType string) bool {
	for _, t := range c.SupportedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}
