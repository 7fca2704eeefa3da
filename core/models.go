package core

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated by content-based hashing so identical content always
// produces the same identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID generates the deterministic ID for a chunk at a given position
// within a source document.
func ChunkID(sourceURI string, position int) ID {
	return IDFromContent(fmt.Sprintf("%s#%d", sourceURI, position))
}

// Fingerprint computes the content fingerprint for raw document bytes.
// Identical bytes always yield the identical fingerprint.
func Fingerprint(data []byte) string {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Status describes where a cached document sits in its processing lifecycle.
type Status int

const (
	// StatusPending means the document changed and awaits processing.
	StatusPending Status = iota + 1
	// StatusProcessing means a worker currently holds the document.
	StatusProcessing
	// StatusComplete means the stored fingerprint has been fully embedded.
	StatusComplete
	// StatusFailed means processing exhausted its retries.
	StatusFailed
	// StatusDeleted means the source object is gone and its vectors await removal.
	StatusDeleted
)

var statusNames = map[Status]string{
	StatusPending:    "pending",
	StatusProcessing: "processing",
	StatusComplete:   "complete",
	StatusFailed:     "failed",
	StatusDeleted:    "deleted",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// CacheEntry records the last-seen fingerprint and processing status of a
// single document. At most one entry exists per URI.
type CacheEntry struct {
	URI         string
	Fingerprint string
	ContentType string
	Size        int64
	Status      Status
	Version     uint64 // CAS counter, incremented on every write
	UpdatedAt   time.Time
	IngestedAt  time.Time // set when the entry last reached StatusComplete
}

// Action is the operation selected for a manifest item.
type Action int

const (
	// ActionUpsert embeds the document and writes its vectors.
	ActionUpsert Action = iota + 1
	// ActionDelete removes the document's vectors and cache entry.
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionUpsert:
		return "upsert"
	case ActionDelete:
		return "delete"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// MarshalText implements encoding.TextMarshaler for JSON manifests.
func (a Action) MarshalText() ([]byte, error) {
	switch a {
	case ActionUpsert, ActionDelete:
		return []byte(a.String()), nil
	}
	return nil, fmt.Errorf("%w: value %d", ErrInvalidAction, int(a))
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON manifests.
func (a *Action) UnmarshalText(text []byte) error {
	switch string(text) {
	case "upsert":
		*a = ActionUpsert
	case "delete":
		*a = ActionDelete
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, string(text))
	}
	return nil
}

// ManifestItem is one document selected for action in a batch. The manifest
// is a pure function of cache state at validation time; corpus mutation
// during a running batch is deferred to the next batch.
type ManifestItem struct {
	URI         string `json:"uri"`
	Action      Action `json:"action"`
	Fingerprint string `json:"fingerprint"`
	ContentType string `json:"contentType,omitempty"`
}

// Stage identifies where an orchestrator run sits in its state machine.
type Stage int

const (
	StageValidating Stage = iota + 1
	StageBookkeeping
	StageFanningOut
	StageFinalized
	StageAborted
)

var stageNames = map[Stage]string{
	StageValidating:  "validating",
	StageBookkeeping: "bookkeeping",
	StageFanningOut:  "fanning-out",
	StageFinalized:   "finalized",
	StageAborted:     "aborted",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether the stage ends a batch.
func (s Stage) Terminal() bool {
	return s == StageFinalized || s == StageAborted
}

// BatchRecord is the durable record of one orchestrator run. Stage advances
// strictly forward except for the Aborted terminal, reachable from any stage.
type BatchRecord struct {
	ExecutionID  string
	Stage        Stage
	ManifestPath string
	ResultPath   string // populated only once the batch is finalized
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// Outcome is the terminal result of processing one manifest item.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota + 1
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler for JSON result manifests.
func (o Outcome) MarshalText() ([]byte, error) {
	switch o {
	case OutcomeSucceeded, OutcomeFailed, OutcomeSkipped:
		return []byte(o.String()), nil
	}
	return nil, fmt.Errorf("%w: value %d", ErrInvalidOutcome, int(o))
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON result manifests.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "succeeded":
		*o = OutcomeSucceeded
	case "failed":
		*o = OutcomeFailed
	case "skipped":
		*o = OutcomeSkipped
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, string(text))
	}
	return nil
}

// ItemResult is the per-item outcome recorded exactly once per manifest item.
// Once a batch is finalized the result set is a bijection with the manifest.
type ItemResult struct {
	URI           string  `json:"documentUri"`
	Outcome       Outcome `json:"status"`
	UnitsProduced int     `json:"unitsProduced"`
	Error         string  `json:"error,omitempty"`
	Attempts      int     `json:"attempts,omitempty"`
}

// Chunk is a bounded slice of a document's content together with its
// embedding vector. Chunk IDs are deterministic over (source, position).
type Chunk struct {
	ID        ID
	SourceURI string
	Position  int
	Text      string
	Vector    []float32
	Model     string
	Metadata  map[string]string
}

// SchemaDescriptor describes the vector collection a batch writes into.
type SchemaDescriptor struct {
	Collection string
	Dimensions int
	Model      string
}

// ChunkMatch is a similarity search hit.
type ChunkMatch struct {
	Chunk *Chunk
	Score float32
}
