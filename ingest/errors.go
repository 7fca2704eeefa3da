package ingest

import "errors"

var (
	// ErrCacheRepositoryRequired is returned when a cache repository is not provided.
	ErrCacheRepositoryRequired = errors.New("cache repository required")

	// ErrBatchRepositoryRequired is returned when a batch repository is not provided.
	ErrBatchRepositoryRequired = errors.New("batch repository required")

	// ErrVectorRepositoryRequired is returned when a vector repository is not provided.
	ErrVectorRepositoryRequired = errors.New("vector repository required")

	// ErrStoreRequired is returned when a corpus store is not provided.
	ErrStoreRequired = errors.New("corpus store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrUnsupportedContentType is returned when a worker receives a document
	// it has no parser for. Always terminal.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrBatchTerminal is returned when resuming a batch that already reached
	// a terminal stage.
	ErrBatchTerminal = errors.New("batch already terminal")

	// ErrManifestInvalid is returned when the validation stage produced a
	// manifest that fails validation.
	ErrManifestInvalid = errors.New("manifest failed validation")
)

// terminalError marks a per-item error as not worth retrying: the same input
// will fail the same way on every attempt.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }

func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps err so that retry logic gives up immediately.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err is marked terminal.
func IsTerminal(err error) bool {
	var te *terminalError
	return errors.As(err, &te)
}
