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

// Package search provides semantic retrieval over the ingested corpus.
//
// The Searcher embeds a query with the same model that embedded the corpus,
// runs a similarity search against the vector store, and boosts chunks that
// also contain every query word verbatim (after stop-word filtering). Results
// are ranked by the combined score.
package search
