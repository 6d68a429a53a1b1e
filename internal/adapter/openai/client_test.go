package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/resilience"
)

func testConfig(url string) config.OpenAI {
	return config.OpenAI{
		URL:         url,
		APIKey:      "test-key",
		Model:       "gpt-4o-mini",
		MaxTokens:   4000,
		Temperature: 0.7,
		Timeout:     5 * time.Second,
	}
}

func completionResponse(content string) string {
	quoted, _ := json.Marshal(content)
	return `{"choices": [{"message": {"role": "assistant", "content": ` + string(quoted) + `}}]}`
}

func TestComplete(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(completionResponse("  The answer.  ")))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	got, err := client.Complete(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "The answer." {
		t.Errorf("expected trimmed content, got %q", got)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("expected /chat/completions, got %q", gotPath)
	}
	if gotReq["model"] != "gpt-4o-mini" {
		t.Errorf("expected model in request, got %v", gotReq["model"])
	}
	msgs, ok := gotReq["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %v", gotReq["messages"])
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status code in error, got %v", err)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error for empty choices, got nil")
	}
}

func TestCompleteMissingKey(t *testing.T) {
	cfg := testConfig("http://localhost:0")
	cfg.APIKey = ""
	client := NewClient(cfg)

	_, err := client.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected misconfiguration error, got nil")
	}
}

func TestCompleteBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	client.SetBreaker(resilience.NewBreaker(2, time.Minute))

	for range 2 {
		if _, err := client.Complete(context.Background(), "s", "u"); err == nil {
			t.Fatal("expected error while tripping breaker")
		}
	}

	_, err := client.Complete(context.Background(), "s", "u")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after repeated failures, got %v", err)
	}
}
