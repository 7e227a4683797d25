package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockLLMServer is a test server standing in for an LLM provider's HTTP API.
type MockLLMServer struct {
	*httptest.Server
	mu       sync.Mutex
	Handlers map[string]http.HandlerFunc
	Requests []string // paths, in arrival order
}

// NewMockLLMServer creates a new mock provider server.
func NewMockLLMServer(t *testing.T) *MockLLMServer {
	t.Helper()
	m := &MockLLMServer{Handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.Requests = append(m.Requests, r.URL.Path)
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers a handler for path.
func (m *MockLLMServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	m.Handlers[path] = h
	m.mu.Unlock()
}

// RequestCount returns how many requests hit path.
func (m *MockLLMServer) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.Requests {
		if p == path {
			n++
		}
	}
	return n
}

// MockJSON answers path with a fixed status and JSON body.
func (m *MockLLMServer) MockJSON(path string, status int, body any) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	})
}

// MockOpenAIChat answers the chat completions endpoint with one assistant message.
func (m *MockLLMServer) MockOpenAIChat(model, content string) {
	m.MockJSON("/chat/completions", http.StatusOK, map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

// MockAnthropicMessage answers the messages endpoint with one text block.
func (m *MockLLMServer) MockAnthropicMessage(model, text string) {
	m.MockJSON("/v1/messages", http.StatusOK, map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         model,
		"stop_reason":   "end_turn",
		"content":       []map[string]any{{"type": "text", "text": text}},
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
		"stop_sequence": nil,
	})
}

// MockOllamaGenerate answers the generate endpoint with a single non-streamed response.
func (m *MockLLMServer) MockOllamaGenerate(model, response string) {
	m.MockJSON("/api/generate", http.StatusOK, map[string]any{
		"model":    model,
		"response": response,
		"done":     true,
	})
}
