package summary

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaGenerator calls a local Ollama server.
type OllamaGenerator struct {
	client *api.Client
}

// NewOllama creates a client for the server at host (e.g. http://localhost:11434).
func NewOllama(host string) (*OllamaGenerator, error) {
	u, err := url.Parse(host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q", host)
	}
	// per-attempt contexts set the real deadline
	httpClient := &http.Client{Timeout: 10 * time.Minute}
	return &OllamaGenerator{client: api.NewClient(u, httpClient)}, nil
}

func (o *OllamaGenerator) Name() string { return ProviderOllama }

func (o *OllamaGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	stream := false
	var b strings.Builder
	err := o.client.Generate(ctx, &api.GenerateRequest{Model: model, Prompt: prompt, Stream: &stream}, func(r api.GenerateResponse) error {
		b.WriteString(r.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return b.String(), nil
}
