// Package embed wraps an external embedding capability behind a caching
// gateway. Identical text always resolves to the identical vector: a
// content-hash cache answers repeat requests without an upstream call.
//
// Upstream failures surface as EmbeddingUnavailableError (retryable) or
// UpstreamTimeoutError (deadline expiry); neither is ever a reason to
// touch the store.
package embed

import "context"

// Embedder converts text to a fixed-dimension vector. Implementations:
// mock (testing), onnx (local all-MiniLM model), or any API-backed
// embedder the host wires in.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
