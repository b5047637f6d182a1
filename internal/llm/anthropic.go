package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/ppiankov/radaudit/internal/util"
)

const anthropicDefaultModel = "claude-sonnet-4-5-20250929"

// AnthropicGenerator implements Generator using the official Anthropic SDK
type AnthropicGenerator struct {
	client sdk.Client
	config Config
}

// NewAnthropicGenerator creates a new Anthropic generator
func NewAnthropicGenerator(config Config) (*AnthropicGenerator, error) {
	if config.APIKey == "" {
		return nil, eris.New("llm: Anthropic API key is required")
	}
	if config.Model == "" {
		config.Model = anthropicDefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// Retries are owned by the structured inference loop
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		}),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicGenerator{
		client: sdk.NewClient(opts...),
		config: config,
	}, nil
}

// Name returns the provider name
func (g *AnthropicGenerator) Name() string {
	return ProviderAnthropic
}

// IsAvailable reports whether credentials are configured; it makes no network call
func (g *AnthropicGenerator) IsAvailable(ctx context.Context) bool {
	return g.config.APIKey != ""
}

// Generate calls the Messages API with the image (if any) ahead of the prompt text
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, 2)
	if hasImage(req) {
		blocks = append(blocks, sdk.NewImageBlockBase64(imageMIME(req.Image), imageBase64(req.Image)))
	}
	blocks = append(blocks, sdk.NewTextBlock(req.Prompt))

	params := sdk.MessageNewParams{
		Model:     sdk.Model(g.config.Model),
		MaxTokens: int64(maxTokens(req, g.config)),
		System:    []sdk.TextBlockParam{{Text: SystemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}
	if g.config.Temperature > 0 {
		params.Temperature = sdk.Float(float64(g.config.Temperature))
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "llm: anthropic create message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", eris.New("llm: no text content in anthropic response")
	}
	return strings.TrimSpace(b.String()), nil
}
