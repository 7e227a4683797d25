package summary

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalogue is the YAML document listing the provider fallback order.
//
//	providers:
//	  - provider: gemini
//	    model: gemini-3-flash-preview
//	    timeout: 45s
type Catalogue struct {
	Providers []Descriptor `yaml:"providers"`
}

// Credentials carries provider secrets and endpoints. Empty fields disable a provider.
type Credentials struct {
	GeminiAPIKey    string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OllamaHost      string
}

// LoadCatalogue reads a catalogue file. Entries without a timeout get defaultTimeout.
func LoadCatalogue(path string, defaultTimeout time.Duration) ([]Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider catalogue: %w", err)
	}
	var c Catalogue
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse provider catalogue %s: %w", path, err)
	}
	out := make([]Descriptor, 0, len(c.Providers))
	for i, d := range c.Providers {
		if d.Provider == "" || d.Model == "" {
			return nil, fmt.Errorf("provider catalogue entry %d: provider and model are required", i)
		}
		if d.Timeout <= 0 {
			d.Timeout = defaultTimeout
		}
		out = append(out, d)
	}
	return out, nil
}

// DefaultDescriptors is the built-in chain: the two Gemini models first, then whichever of
// the other providers have credentials.
func DefaultDescriptors(creds Credentials, timeout time.Duration) []Descriptor {
	var out []Descriptor
	if creds.GeminiAPIKey != "" {
		out = append(out,
			Descriptor{Provider: ProviderGemini, Model: "gemini-3-flash-preview", Timeout: timeout},
			Descriptor{Provider: ProviderGemini, Model: "gemini-2.5-flash", Timeout: timeout},
		)
	}
	if creds.AnthropicAPIKey != "" {
		out = append(out, Descriptor{Provider: ProviderAnthropic, Model: "claude-haiku-4-5", Timeout: timeout})
	}
	if creds.OpenAIAPIKey != "" {
		out = append(out, Descriptor{Provider: ProviderOpenAI, Model: "gpt-4o-mini", Timeout: timeout})
	}
	if creds.OllamaHost != "" {
		out = append(out, Descriptor{Provider: ProviderOllama, Model: "llama3.2", Timeout: timeout})
	}
	return out
}

// Generators builds a generator for every provider with credentials.
func Generators(ctx context.Context, creds Credentials) (map[string]Generator, error) {
	gens := make(map[string]Generator)
	if creds.GeminiAPIKey != "" {
		g, err := NewGemini(ctx, creds.GeminiAPIKey, "")
		if err != nil {
			return nil, err
		}
		gens[ProviderGemini] = g
	}
	if creds.AnthropicAPIKey != "" {
		gens[ProviderAnthropic] = NewAnthropic(creds.AnthropicAPIKey, "")
	}
	if creds.OpenAIAPIKey != "" {
		gens[ProviderOpenAI] = NewOpenAI(creds.OpenAIAPIKey, "")
	}
	if creds.OllamaHost != "" {
		g, err := NewOllama(creds.OllamaHost)
		if err != nil {
			return nil, err
		}
		gens[ProviderOllama] = g
	}
	return gens, nil
}

// Resolve picks the descriptor list: the catalogue file when set, otherwise the defaults.
// Entries naming a provider without a generator are dropped with a warning.
func Resolve(path string, creds Credentials, gens map[string]Generator, timeout time.Duration) ([]Descriptor, error) {
	descs := DefaultDescriptors(creds, timeout)
	if path != "" {
		var err error
		if descs, err = LoadCatalogue(path, timeout); err != nil {
			return nil, err
		}
	}
	usable := descs[:0:0]
	for _, d := range descs {
		if _, ok := gens[d.Provider]; !ok {
			slog.Warn("summary provider not configured; skipping", slog.String("provider", d.Provider), slog.String("model", d.Model))
			continue
		}
		usable = append(usable, d)
	}
	return usable, nil
}
