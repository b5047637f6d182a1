package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/radaudit/internal/model"
)

func TestOpenAIGenerator_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var body openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != openai.ChatMessageRoleSystem {
			t.Errorf("Expected system and user messages, got %+v", body.Messages)
		}
		if body.Messages[1].Content != "extract claims" {
			t.Errorf("Expected plain-text user content, got %q", body.Messages[1].Content)
		}

		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: "  {\"claims\": []}\n",
					},
					FinishReason: "stop",
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	out, err := gen.Generate(context.Background(), Request{Prompt: "extract claims", Task: model.TaskClaimExtraction})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != `{"claims": []}` {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestOpenAIGenerator_Generate_WithImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		parts := body.Messages[1].MultiContent
		if len(parts) != 2 {
			t.Fatalf("Expected image and text parts, got %d", len(parts))
		}
		if parts[0].ImageURL == nil || !strings.HasPrefix(parts[0].ImageURL.URL, "data:image/jpeg;base64,") {
			t.Errorf("Expected jpeg data URL, got %+v", parts[0].ImageURL)
		}
		if parts[1].Text != "describe findings" {
			t.Errorf("Expected prompt text part, got %q", parts[1].Text)
		}

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "{}"}}},
		})
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	img := &model.Image{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"}
	if _, err := gen.Generate(context.Background(), Request{Prompt: "describe findings", Image: img}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
}

func TestOpenAIGenerator_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "Internal Server Error", "type": "server_error"}}`))
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	if _, err := gen.Generate(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestOpenAIGenerator_Generate_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "chatcmpl-1", "choices": []}`))
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	_, err = gen.Generate(context.Background(), Request{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "no response") {
		t.Fatalf("Expected no response error, got %v", err)
	}
}

func TestOpenAIGenerator_Generate_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := gen.Generate(ctx, Request{Prompt: "x"}); err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
}

func TestOpenAIGenerator_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			_, _ = w.Write([]byte(`{"data": [{"id": "gpt-4o-mini"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	if !gen.IsAvailable(context.Background()) {
		t.Error("Expected available to be true")
	}

	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if gen.IsAvailable(context.Background()) {
		t.Error("Expected available to be false on error")
	}
}

func TestNewOpenAIGenerator_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIGenerator(Config{}); err == nil {
		t.Fatal("Expected error without API key")
	}
}

func TestNewHFGenerator_Defaults(t *testing.T) {
	gen, err := NewHFGenerator(Config{APIKey: "hf_test"})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}
	if gen.Name() != ProviderHF {
		t.Errorf("Expected name %q, got %q", ProviderHF, gen.Name())
	}
	if gen.config.BaseURL != hfBaseURL {
		t.Errorf("Expected base URL %q, got %q", hfBaseURL, gen.config.BaseURL)
	}
	if gen.config.Model != hfDefaultModel {
		t.Errorf("Expected model %q, got %q", hfDefaultModel, gen.config.Model)
	}
}
