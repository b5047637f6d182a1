package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ppiankov/radaudit/internal/util"
)

// Hugging Face serves hosted models through an OpenAI-compatible router
const (
	hfBaseURL      = "https://router.huggingface.co/v1"
	hfDefaultModel = "google/medgemma-4b-it"
)

// OpenAIGenerator implements Generator for OpenAI and OpenAI-compatible endpoints
type OpenAIGenerator struct {
	client *openai.Client
	config Config
	name   string
}

// NewOpenAIGenerator creates a new OpenAI generator
func NewOpenAIGenerator(config Config) (*OpenAIGenerator, error) {
	if config.APIKey == "" {
		return nil, eris.New("llm: OpenAI API key is required")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	return newOpenAICompatible(ProviderOpenAI, config), nil
}

// NewHFGenerator creates a generator for the Hugging Face inference router
func NewHFGenerator(config Config) (*OpenAIGenerator, error) {
	if config.APIKey == "" {
		return nil, eris.New("llm: Hugging Face token is required (HF_TOKEN)")
	}
	if config.BaseURL == "" {
		config.BaseURL = hfBaseURL
	}
	if config.Model == "" {
		config.Model = hfDefaultModel
	}
	return newOpenAICompatible(ProviderHF, config), nil
}

func newOpenAICompatible(name string, config Config) *OpenAIGenerator {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: time.Duration(config.Timeout) * time.Second,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		name:   name,
	}
}

// Name returns the provider name
func (g *OpenAIGenerator) Name() string {
	return g.name
}

// IsAvailable checks if the provider is properly configured
func (g *OpenAIGenerator) IsAvailable(ctx context.Context) bool {
	if _, err := g.client.ListModels(ctx); err != nil {
		zap.L().Warn("openai-compatible availability check failed",
			zap.String("provider", g.name),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Generate calls the Chat Completions API, attaching the image as a data URL part
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if hasImage(req) {
		user.MultiContent = []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + imageMIME(req.Image) + ";base64," + imageBase64(req.Image),
					Detail: openai.ImageURLDetailAuto,
				},
			},
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
		}
	} else {
		user.Content = req.Prompt
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			user,
		},
		MaxTokens:   maxTokens(req, g.config),
		Temperature: g.config.Temperature,
	})
	if err != nil {
		return "", eris.Wrapf(err, "llm: %s chat completion", g.name)
	}
	if len(resp.Choices) == 0 {
		return "", eris.Errorf("llm: no response from %s", g.name)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
