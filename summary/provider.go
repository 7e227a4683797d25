// Package summary turns a finished transcript into an AI-written summary. Providers are tried
// in a configured order with a per-attempt timeout; if every provider fails the caller simply
// gets no summary.
package summary

import (
	"context"
	"time"
)

// Generator is one AI backend.
type Generator interface {
	// Name must match the provider key used in descriptors ("gemini", "anthropic", ...).
	Name() string
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Descriptor is one entry of the fallback chain.
type Descriptor struct {
	Provider string        `yaml:"provider" json:"provider"`
	Model    string        `yaml:"model" json:"model"`
	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Provider names.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)
