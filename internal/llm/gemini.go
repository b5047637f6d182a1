package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/ppiankov/radaudit/internal/util"
)

const geminiDefaultModel = "gemini-2.5-flash"

// GeminiGenerator implements Generator for the Gemini API (including hosted Gemma models)
type GeminiGenerator struct {
	client *genai.Client
	config Config
}

// NewGeminiGenerator creates a new Gemini generator
func NewGeminiGenerator(config Config) (*GeminiGenerator, error) {
	if config.APIKey == "" {
		return nil, eris.New("llm: Gemini API key is required")
	}
	if config.Model == "" {
		config.Model = geminiDefaultModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		},
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, eris.Wrap(err, "llm: create genai client")
	}

	return &GeminiGenerator{client: client, config: config}, nil
}

// Name returns the provider name
func (g *GeminiGenerator) Name() string {
	return ProviderGemini
}

// IsAvailable reports whether credentials are configured; it makes no network call
func (g *GeminiGenerator) IsAvailable(ctx context.Context) bool {
	return g.config.APIKey != ""
}

// Generate sends the image as inline bytes followed by the prompt text
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	parts := make([]*genai.Part, 0, 2)
	if hasImage(req) {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, imageMIME(req.Image)))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
		MaxOutputTokens:   int32(maxTokens(req, g.config)),
		Temperature:       genai.Ptr(g.config.Temperature),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		return "", eris.Wrap(err, "llm: gemini generate content")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("llm: empty gemini response")
	}
	return text, nil
}
