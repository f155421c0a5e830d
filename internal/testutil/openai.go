// Package testutil provides a fake OpenAI upstream for tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// DefaultModels is what the fake upstream lists at GET /v1/models.
var DefaultModels = []string{"gpt-3.5-turbo-0125", "gpt-4o-mini"}

// NewOpenAIServer starts a fake OpenAI API. chat handles
// POST /v1/chat/completions; GET /v1/models lists DefaultModels. The server
// is closed when the test ends.
func NewOpenAIServer(t testing.TB, chat http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", chat)
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, _ *http.Request) {
		data := make([]map[string]string, len(DefaultModels))
		for i, m := range DefaultModels {
			data[i] = map[string]string{"id": m, "object": "model"}
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// ChatCompletion returns a chat completion body with one choice per content.
func ChatCompletion(contents ...string) map[string]any {
	choices := make([]map[string]any, len(contents))
	for i, c := range contents {
		choices[i] = map[string]any{
			"index":         i,
			"message":       map[string]string{"role": "assistant", "content": c},
			"finish_reason": "stop",
		}
	}
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"model":   "gpt-3.5-turbo-0125",
		"choices": choices,
		"usage":   map[string]int{"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12},
	}
}

// ReplyWith answers every chat request with the given choice contents.
func ReplyWith(contents ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusOK, ChatCompletion(contents...))
	}
}

// EchoPrompt answers with the last message's content.
func EchoPrompt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]string{"message": "bad request", "type": "invalid_request_error"},
			})
			return
		}
		writeJSON(w, http.StatusOK, ChatCompletion(prefix+req.Messages[len(req.Messages)-1].Content))
	}
}

// ReplyRaw answers every chat request with status and body verbatim.
func ReplyRaw(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
