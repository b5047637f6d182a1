package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/radaudit/internal/util"
)

// OllamaGenerator implements Generator for Ollama local models
type OllamaGenerator struct {
	client *resty.Client
	config Config
}

// Ollama API structures
type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	System  string        `json:"system,omitempty"`
	Format  string        `json:"format,omitempty"`
	Images  []string      `json:"images,omitempty"` // Base64, no data URL prefix
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens
}

type ollamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`

	// Token counts (only present when done=true)
	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaGenerator creates a new Ollama generator
func NewOllamaGenerator(config Config) (*OllamaGenerator, error) {
	if config.Model == "" {
		return nil, eris.New("llm: ollama model must be specified (e.g., medgemma:4b, llava)")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTransport(&http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		})
	if config.Timeout > 0 {
		client.SetTimeout(time.Duration(config.Timeout) * time.Second)
	}

	return &OllamaGenerator{client: client, config: config}, nil
}

// Name returns the provider name
func (g *OllamaGenerator) Name() string {
	return ProviderOllama
}

// IsAvailable checks if Ollama is running by listing local models
func (g *OllamaGenerator) IsAvailable(ctx context.Context) bool {
	resp, err := g.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		zap.L().Warn("ollama availability check failed", zap.Error(err))
		return false
	}
	if resp.StatusCode() != http.StatusOK {
		zap.L().Warn("ollama availability check failed", zap.Int("status", resp.StatusCode()))
		return false
	}
	return true
}

// Generate calls /api/generate in non-streaming JSON mode
func (g *OllamaGenerator) Generate(ctx context.Context, req Request) (string, error) {
	apiReq := ollamaRequest{
		Model:  g.config.Model,
		Prompt: req.Prompt,
		Stream: false,
		System: SystemPrompt,
		Format: "json",
		Options: ollamaOptions{
			Temperature: g.config.Temperature,
			NumPredict:  maxTokens(req, g.config),
		},
	}
	if hasImage(req) {
		apiReq.Images = []string{imageBase64(req.Image)}
	}

	var out ollamaResponse
	var apiErr ollamaError
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(apiReq).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/generate")
	if err != nil {
		return "", eris.Wrap(err, "llm: ollama request")
	}

	if resp.IsError() {
		if apiErr.Error != "" {
			return "", eris.Errorf("llm: ollama API error (%d): %s", resp.StatusCode(), apiErr.Error)
		}
		return "", eris.Errorf("llm: ollama API error (%d): %s", resp.StatusCode(), resp.String())
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", eris.New("llm: empty ollama response")
	}
	return text, nil
}
