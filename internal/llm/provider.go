package llm

import (
	"context"
	"encoding/base64"

	"github.com/ppiankov/radaudit/internal/model"
)

// Generator is the opaque text-generation capability behind every audit stage:
// a prompt and an optional image in, raw text out.
type Generator interface {
	// Name returns the provider name
	Name() string

	// Generate returns the raw model output for the request
	Generate(ctx context.Context, req Request) (string, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Request contains the input for one generation call
type Request struct {
	// Prompt is the fully rendered stage prompt
	Prompt string

	// Image is attached for multimodal stages only
	Image *model.Image

	// Task identifies the stage; remote providers ignore it
	Task model.Task

	// Scenario selects the mock fixture set; remote providers ignore it
	Scenario string

	// MaxTokens limits the response length (0 = provider config)
	MaxTokens int
}

// Config holds generation provider configuration
type Config struct {
	// Provider name: "mock", "openai", "hf", "anthropic", "gemini", "ollama"
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Model name (provider-specific)
	Model string `yaml:"model" mapstructure:"model"`

	// APIKey for hosted providers
	APIKey string `yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL for custom endpoints (e.g., Ollama, a self-hosted OpenAI-compatible server)
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Timeout for a single generation call in seconds (0 = none)
	Timeout int `yaml:"timeout" mapstructure:"timeout"`

	// MaxTokens for response generation
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature for sampling
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`

	// MaxConcurrent caps in-flight generations across the process (0 = unlimited)
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// RequestsPerSecond caps the generation rate (0 = unlimited)
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// MockScenario fixes the mock fixture set: "auto", "pneumonia", "chf", "normal"
	MockScenario string `yaml:"mock_scenario" mapstructure:"mock_scenario"`

	// Proxy settings
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:      ProviderMock,
		Timeout:       0,
		MaxTokens:     1024,
		Temperature:   0.2,
		MaxConcurrent: 1, // Local checkpoints serve one generation at a time
		MockScenario:  ScenarioAuto,
	}
}

// Mock reports whether the config selects the deterministic mock provider
func (c Config) Mock() bool {
	return c.Provider == "" || c.Provider == ProviderMock
}

// SystemPrompt is sent to chat-style providers ahead of every stage prompt
const SystemPrompt = "You are a radiology report auditor. You compare report statements to imaging evidence " +
	"and respond with a single JSON object matching the requested schema. You do not diagnose."

func maxTokens(req Request, config Config) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if config.MaxTokens > 0 {
		return config.MaxTokens
	}
	return 1024
}

func imageBase64(img *model.Image) string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

func imageMIME(img *model.Image) string {
	if img.MIMEType != "" {
		return img.MIMEType
	}
	return "image/png"
}

func hasImage(req Request) bool {
	return req.Image != nil && len(req.Image.Data) > 0
}
