package llm

import (
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Provider names
const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderHF        = "hf"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// NewGenerator creates a generator based on configuration and applies the
// configured concurrency and rate limits.
func NewGenerator(config Config) (Generator, error) {
	gen, err := newProvider(config)
	if err != nil {
		return nil, err
	}
	if config.MaxConcurrent > 0 || config.RequestsPerSecond > 0 {
		gen = NewLimited(gen, config.MaxConcurrent, config.RequestsPerSecond)
	}
	return gen, nil
}

func newProvider(config Config) (Generator, error) {
	config = withEnvAPIKey(config)

	switch strings.ToLower(config.Provider) {
	case ProviderMock, "":
		return NewMockGenerator(config), nil

	case ProviderOpenAI:
		return NewOpenAIGenerator(config)

	case ProviderHF, "huggingface":
		return NewHFGenerator(config)

	case ProviderAnthropic, "claude":
		return NewAnthropicGenerator(config)

	case ProviderGemini, "google":
		return NewGeminiGenerator(config)

	case ProviderOllama:
		return NewOllamaGenerator(config)

	default:
		return nil, eris.Errorf("llm: unknown provider %q (supported: mock, openai, hf, anthropic, gemini, ollama)", config.Provider)
	}
}

// withEnvAPIKey fills the API key from the provider's conventional env var
func withEnvAPIKey(config Config) Config {
	if config.APIKey != "" {
		return config
	}

	var names []string
	switch strings.ToLower(config.Provider) {
	case ProviderOpenAI:
		names = []string{"OPENAI_API_KEY"}
	case ProviderHF, "huggingface":
		names = []string{"HF_TOKEN", "HUGGINGFACEHUB_API_TOKEN"}
	case ProviderAnthropic, "claude":
		names = []string{"ANTHROPIC_API_KEY"}
	case ProviderGemini, "google":
		names = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	}

	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			config.APIKey = v
			break
		}
	}
	return config
}

var (
	sharedOnce sync.Once
	sharedGen  Generator
	sharedErr  error
)

// Shared returns the process-wide generator, building it on first use.
// Later calls return the same instance regardless of the config they pass.
func Shared(config Config) (Generator, error) {
	sharedOnce.Do(func() {
		sharedGen, sharedErr = NewGenerator(config)
		if sharedErr == nil {
			zap.L().Info("generator initialized",
				zap.String("provider", sharedGen.Name()),
				zap.String("model", config.Model),
			)
		}
	})
	return sharedGen, sharedErr
}

// resetShared clears the singleton; tests only
func resetShared() {
	sharedOnce = sync.Once{}
	sharedGen = nil
	sharedErr = nil
}
