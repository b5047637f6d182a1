package cli

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/radaudit/internal/cache"
	"github.com/ppiankov/radaudit/internal/config"
	"github.com/ppiankov/radaudit/internal/infer"
	"github.com/ppiankov/radaudit/internal/llm"
	"github.com/ppiankov/radaudit/internal/pipeline"
	"github.com/ppiankov/radaudit/internal/store"
)

// openStore opens the configured store; callers close it
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.New(ctx, c.Storage)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// newAuditor wires generator, cache, inference client and store into an Auditor
func newAuditor(c *config.Config, st store.Store) (*pipeline.Auditor, error) {
	gen, err := llm.Shared(c.Generation)
	if err != nil {
		return nil, eris.Wrap(err, "create generator")
	}

	stageCache, err := cache.New(c.Cache)
	if err != nil {
		return nil, eris.Wrap(err, "create cache")
	}

	modelName := c.Generation.Model
	if modelName == "" {
		modelName = gen.Name()
	}

	opts := []infer.Option{
		infer.WithModel(modelName),
		infer.WithMaxAttempts(c.Pipeline.MaxAttempts),
		infer.WithRetryPause(c.Pipeline.RetryPause),
		infer.WithMaxTokens(c.Generation.MaxTokens),
		infer.WithCache(stageCache, c.Cache.TTL),
	}
	if c.Generation.Timeout > 0 {
		opts = append(opts, infer.WithTimeout(time.Duration(c.Generation.Timeout)*time.Second))
	}

	return pipeline.NewAuditor(infer.New(gen, opts...), st, pipeline.Options{
		ModelName:     modelName,
		ModelVersion:  c.Pipeline.ModelVersion,
		LoRAID:        c.Pipeline.LoRAID,
		PromptVersion: c.Pipeline.PromptVersion,
		MockMode:      c.Generation.Mock(),
		MockScenario:  c.Generation.MockScenario,
	}), nil
}
