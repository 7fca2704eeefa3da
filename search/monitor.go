package search

import "github.com/lodestone-ai/corpusflow/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterVectorSearch(matches []*core.ChunkMatch)
	VerbatimBoost(chunk *core.Chunk)
	Finish(results []*core.ChunkMatch)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                         {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.ChunkMatch) {}
func (n *noopMonitor) VerbatimBoost(_ *core.Chunk)            {}
func (n *noopMonitor) Finish(_ []*core.ChunkMatch)            {}
