// Package infer turns free-text generator output into schema-valid stage outputs.
package infer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/radaudit/internal/cache"
	"github.com/ppiankov/radaudit/internal/llm"
	"github.com/ppiankov/radaudit/internal/metrics"
	"github.com/ppiankov/radaudit/internal/model"
	"github.com/ppiankov/radaudit/internal/schema"
	"github.com/ppiankov/radaudit/internal/util"
)

const (
	defaultMaxAttempts = 3
	defaultRetryPause  = time.Second
)

// pauseFunc waits between failed attempts (injectable for tests)
var pauseFunc = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client runs one structured generation per call with bounded retry and repair.
// A Client is safe for concurrent use; per-run settings live on copies.
type Client struct {
	gen         llm.Generator
	model       string
	scenario    string
	maxAttempts int
	retryPause  time.Duration
	timeout     time.Duration
	maxTokens   int
	cache       cache.Cache
	cacheTTL    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithModel records the model id used in cache keys
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithScenario fixes the mock fixture set sent with every request
func WithScenario(scenario string) Option {
	return func(c *Client) { c.scenario = scenario }
}

// WithMaxAttempts sets the number of generation attempts per stage
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryPause sets the wait between a failed attempt and the next one
func WithRetryPause(d time.Duration) Option {
	return func(c *Client) { c.retryPause = d }
}

// WithTimeout bounds each generation call (0 = no bound)
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxTokens overrides the provider's response length
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithCache stores validated outputs and serves repeats without generation
func WithCache(store cache.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = store
		c.cacheTTL = ttl
	}
}

// New creates a client over gen
func New(gen llm.Generator, opts ...Option) *Client {
	c := &Client{
		gen:         gen,
		maxAttempts: defaultMaxAttempts,
		retryPause:  defaultRetryPause,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForScenario returns a copy of the client bound to a mock scenario
func (c *Client) ForScenario(scenario string) *Client {
	clone := *c
	clone.scenario = scenario
	return &clone
}

// Scenario returns the mock scenario the client sends
func (c *Client) Scenario() string {
	return c.scenario
}

// Generator returns the underlying generator
func (c *Client) Generator() llm.Generator {
	return c.gen
}

// InferStructured generates, extracts, validates and decodes the output for task.
// On success the error list is nil. When every attempt fails it returns the
// fallback placeholder for task and the errors from the last attempt; it never
// returns a partially structured value.
func (c *Client) InferStructured(ctx context.Context, task model.Task, prompt string, image *model.Image) (model.StageOutput, []string) {
	if !task.Valid() {
		return nil, []string{fmt.Sprintf("unknown task %q", task)}
	}

	log := zap.L().With(zap.String("task", string(task)), zap.String("provider", c.gen.Name()))

	key := c.cacheKey(task, prompt, image)
	if out, ok := c.cached(task, key); ok {
		metrics.StageRuns.WithLabelValues(string(task), metrics.OutcomeCached).Inc()
		log.Debug("stage output served from cache")
		return out, nil
	}

	var errs []string
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := pauseFunc(ctx, c.retryPause); err != nil {
				errs = append(errs, "retry aborted: "+err.Error())
				break
			}
		}

		req := llm.Request{
			Prompt:    prompt + retryHint(errs),
			Image:     image,
			Task:      task,
			Scenario:  c.scenario,
			MaxTokens: c.maxTokens,
		}

		out, attemptErrs, result := c.attempt(ctx, req)
		metrics.GenerationAttempts.WithLabelValues(string(task), result).Inc()
		if len(attemptErrs) == 0 {
			c.store(key, out)
			metrics.StageRuns.WithLabelValues(string(task), metrics.OutcomeOK).Inc()
			return out, nil
		}

		errs = attemptErrs
		log.Warn("structured generation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.String("result", result),
			zap.Strings("errors", errs),
		)
	}

	metrics.StageRuns.WithLabelValues(string(task), metrics.OutcomeFallback).Inc()
	metrics.SchemaRepairs.WithLabelValues(string(task)).Inc()
	log.Error("structured generation exhausted, using fallback", zap.Strings("errors", errs))
	return model.Fallback(task), errs
}

// attempt runs one generation and reports its errors and metric result label
func (c *Client) attempt(ctx context.Context, req llm.Request) (model.StageOutput, []string, string) {
	text, err := c.generate(ctx, req)
	if err != nil {
		return nil, []string{"generation failed: " + err.Error()}, metrics.AttemptGenError
	}

	data, ok := schema.ExtractStructured(text)
	if !ok {
		return nil, []string{"no JSON object found in model output"}, metrics.AttemptParseError
	}

	if errs := schema.Validate(data, req.Task); len(errs) > 0 {
		return nil, errs, metrics.AttemptSchemaError
	}

	out, err := decode(req.Task, data)
	if err != nil {
		return nil, []string{err.Error()}, metrics.AttemptDecodeError
	}
	return out, nil, metrics.AttemptOK
}

// generate calls the generator, converting panics into errors
func (c *Client) generate(ctx context.Context, req llm.Request) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("infer: generator panicked: %v", r)
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		metrics.GenerationLatency.WithLabelValues(c.gen.Name()).Observe(time.Since(start).Seconds())
	}()

	return c.gen.Generate(ctx, req)
}

// decode converts validated generic JSON into the task's typed output
func decode(task model.Task, data any) (model.StageOutput, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "decode: re-encode output")
	}
	return decodeBytes(task, raw)
}

func decodeBytes(task model.Task, raw []byte) (model.StageOutput, error) {
	out, err := model.NewOutput(task)
	if err != nil {
		return nil, eris.Wrap(err, "decode")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, eris.Wrapf(err, "decode: %s output", task)
	}
	return out, nil
}

func (c *Client) cacheKey(task model.Task, prompt string, image *model.Image) string {
	if c.cache == nil {
		return ""
	}
	imageHash := ""
	if image != nil {
		imageHash = util.SHA256Hex(image.Data)
	}
	return cache.CacheKey(c.gen.Name(), c.model, c.scenario, string(task), prompt, imageHash)
}

func (c *Client) cached(task model.Task, key string) (model.StageOutput, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out, err := decodeBytes(task, raw)
	if err != nil {
		_ = c.cache.Delete(key)
		return nil, false
	}
	return out, true
}

func (c *Client) store(key string, out model.StageOutput) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := c.cache.Set(key, raw, c.cacheTTL); err != nil {
		zap.L().Warn("cache write failed", zap.Error(err))
	}
}

// Structured is InferStructured for a statically known output type:
//
//	claims, errs := infer.Structured[model.ClaimExtractionOutput](ctx, client, prompt, nil)
func Structured[T any, PT interface {
	*T
	model.StageOutput
}](ctx context.Context, c *Client, prompt string, image *model.Image) (T, []string) {
	var zero T
	task := PT(&zero).Task()

	out, errs := c.InferStructured(ctx, task, prompt, image)
	typed, ok := out.(PT)
	if !ok || typed == nil {
		if fb, ok := model.Fallback(task).(PT); ok {
			return *fb, errs
		}
		return zero, errs
	}
	return *typed, errs
}
