package embedding

import "context"

// Provider generates vectors for text prompts (spec §4.6, §6 "embedding
// provider interface"). OllamaProvider in this package is the concrete
// implementation that ships; other backends implement this interface.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}
