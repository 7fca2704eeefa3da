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
	"errors"
)

// ErrObjectNotFound is returned when a URI does not exist in the store.
var ErrObjectNotFound = errors.New("blob: object not found")

// Object describes one corpus document as seen in a store listing.
type Object struct {
	// URI identifies the object within the store. For the filesystem
	// implementation this is the path relative to the store root, using
	// forward slashes.
	URI string

	// Fingerprint is a digest of the object's content. Two objects with the
	// same fingerprint are considered identical for change detection.
	Fingerprint string

	// ContentType is the MIME type of the object, inferred from the object's
	// extension when the store has no better information.
	ContentType string

	// Size is the object's content length in bytes.
	Size int64
}

// Store is the corpus store the ingestion pipeline reads from.
// Implementations must be safe for concurrent use.
type Store interface {
	// List returns a complete snapshot of every object currently in the
	// store. Metadata sidecars are not listed as objects.
	List(ctx context.Context) ([]Object, error)

	// Fetch returns the content of the object at uri.
	// Returns ErrObjectNotFound if the object does not exist.
	Fetch(ctx context.Context, uri string) ([]byte, error)

	// FetchMetadata returns the metadata sidecar for uri, or nil if the
	// object has no sidecar.
	FetchMetadata(ctx context.Context, uri string) (map[string]string, error)

	// Remove deletes the object at uri together with its metadata sidecar.
	// Removing an absent object is not an error.
	Remove(ctx context.Context, uri string) error
}
