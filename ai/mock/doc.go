// Package mock provides test double implementations of the embedding
// interfaces.
//
// The mocks allow tests to run without an external embedding service and
// enable controlled, deterministic behavior. Vectors are derived from an FNV
// hash of the input text, so the same text always embeds to the same vector.
//
// # Usage in Tests
//
//	mockEmbedder := mock.NewMockEmbedder()
//	vec, err := mockEmbedder.EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	mockEmbedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("service unavailable")
//	}
//
//	// Concurrency assertions
//	peak := mockEmbedder.MaxInFlight()
package mock
