package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppiankov/radaudit/internal/model"
)

func TestOllamaGenerator_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}

		var body ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if body.Format != "json" || body.Stream {
			t.Errorf("Expected non-streaming json format, got format=%q stream=%v", body.Format, body.Stream)
		}
		if len(body.Images) != 1 || body.Images[0] != "AQID" {
			t.Errorf("Expected one base64 image, got %v", body.Images)
		}
		if body.Options.NumPredict != 256 {
			t.Errorf("Expected num_predict 256, got %d", body.Options.NumPredict)
		}

		resp := ollamaResponse{
			Model:           "medgemma:4b",
			Response:        `{"findings": []}`,
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       20,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	gen, err := NewOllamaGenerator(Config{BaseURL: server.URL, Model: "medgemma:4b", Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	req := Request{
		Prompt:    "describe",
		Image:     &model.Image{Data: []byte{1, 2, 3}},
		MaxTokens: 256,
	}
	out, err := gen.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != `{"findings": []}` {
		t.Errorf("Unexpected output: %s", out)
	}
}

func TestOllamaGenerator_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "Internal Server Error"}`))
	}))
	defer server.Close()

	gen, err := NewOllamaGenerator(Config{BaseURL: server.URL, Model: "medgemma:4b", Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	_, err = gen.Generate(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Internal Server Error") {
		t.Errorf("Expected error message to contain 'Internal Server Error', got %v", err)
	}
}

func TestOllamaGenerator_Generate_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model": "medgemma:4b", "response": "   ", "done": true}`))
	}))
	defer server.Close()

	gen, err := NewOllamaGenerator(Config{BaseURL: server.URL, Model: "medgemma:4b"})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	if _, err := gen.Generate(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("Expected error for empty response, got nil")
	}
}

func TestOllamaGenerator_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models": []}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	gen, err := NewOllamaGenerator(Config{BaseURL: server.URL, Model: "medgemma:4b"})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	if !gen.IsAvailable(context.Background()) {
		t.Error("Expected available to be true")
	}

	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if gen.IsAvailable(context.Background()) {
		t.Error("Expected available to be false on error")
	}
}

func TestNewOllamaGenerator_RequiresModel(t *testing.T) {
	if _, err := NewOllamaGenerator(Config{}); err == nil {
		t.Fatal("Expected error without model")
	}
}
