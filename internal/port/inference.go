package port

import "context"

// GenerateRequest carries one prompt to the model backend. Image is optional
// raw page-image bytes; providers encode it as they require.
type GenerateRequest struct {
	Prompt    string
	Image     []byte
	Model     string // optional per-call override of the provider default
	MaxTokens int
}

// InferenceClient abstracts the generative model backend. Implementations
// are stateless; transport-level retry lives in a wrapping client, never in
// the correction loop.
type InferenceClient interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
