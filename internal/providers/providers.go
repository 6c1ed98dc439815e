package providers

import (
	"context"
)

// Config represents one vision request to an LLM provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	// Image is a JPEG sent alongside the prompt.
	Image []byte
	// JSON asks the provider to constrain its answer to a JSON object.
	JSON bool
}

// Provider defines the interface for an LLM provider
type Provider interface {
	ExtractText(ctx context.Context, config Config) (string, error)
}
