package ai

import "context"

// Generator turns a prompt into the model's free-text reply.
// Implementations must be safe for concurrent use.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Provider names accepted by configuration.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)
