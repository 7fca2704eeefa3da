package ingest

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Media markers embedded in transcript-style documents. A marker line and the
// description that follows it must land in a single chunk, never split.
var mediaMarkers = []string{"!?#Image:", "!?#Video:", "!?#Timestamp:"}

// Chunker splits document text into bounded, deterministically ordered
// chunks. Plain text uses recursive character splitting; documents carrying
// media markers use a marker-aware packer that keeps marked blocks intact.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
	size     int
	overlap  int
}

// NewChunker creates a chunker with the given target size and overlap,
// both in characters.
func NewChunker(size, overlap int) *Chunker {
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
		size:    size,
		overlap: overlap,
	}
}

// Split breaks text into chunks. The same text always yields the same chunks
// in the same order.
func (c *Chunker) Split(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if hasMediaMarkers(text) {
		return c.splitMarked(text)
	}
	return c.splitter.SplitText(text)
}

func hasMediaMarkers(text string) bool {
	for _, marker := range mediaMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func isMarkerLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, marker := range mediaMarkers {
		if strings.HasPrefix(trimmed, marker) {
			return true
		}
	}
	return false
}

// markerBlocks partitions text into blocks. Each marker line starts a new
// block that runs until the next marker line; text before the first marker
// forms a plain block.
func markerBlocks(text string) []string {
	lines := strings.Split(text, "\n")
	var blocks []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		block := strings.TrimSpace(strings.Join(current, "\n"))
		if block != "" {
			blocks = append(blocks, block)
		}
		current = nil
	}

	for _, line := range lines {
		if isMarkerLine(line) {
			flush()
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

// splitMarked packs blocks greedily up to the chunk size. Marked blocks are
// indivisible; oversized plain blocks fall back to recursive splitting.
func (c *Chunker) splitMarked(text string) ([]string, error) {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, current.String())
		current.Reset()
	}

	appendBlock := func(block string) {
		if current.Len() > 0 && current.Len()+len(block)+1 > c.size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(block)
	}

	for _, block := range markerBlocks(text) {
		if !isMarkerLine(block) && len(block) > c.size {
			flush()
			sub, err := c.splitter.SplitText(block)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, sub...)
			continue
		}
		appendBlock(block)
	}
	flush()
	return chunks, nil
}
