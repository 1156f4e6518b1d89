package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config configures the OpenAI-compatible gateway. All providers speaking the
// OpenAI chat protocol (openai, deepseek, siliconflow, ollama, ...) share it.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     int     // per-request timeout in seconds (default: 60)
	Temperature float32 // default sampling temperature when constraints leave it unset

	// MaxConcurrent caps simultaneous in-flight completions across all agents
	// of a run, to respect upstream rate limits (default: 4).
	MaxConcurrent int64
	// RequestsPerSecond is a client-side rate limit (default: 2).
	RequestsPerSecond float64
	// CacheSize is the number of prompt/response pairs kept in the LRU cache
	// (default: 256). Identical prompts within a process hit the cache, which
	// also keeps repeated analysis runs deterministic.
	CacheSize int
}

// Provider default base URLs, applied when Config.BaseURL is empty.
var providerDefaults = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"ollama":      "http://localhost:11434",
}

type gateway struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	temperature float32
	sem         *semaphore.Weighted
	limiter     *rate.Limiter
	cache       *lru.Cache[string, string]

	// Optional hooks for observability; nil-safe.
	onTokens   func(prompt, completion int)
	onCacheHit func(hit bool)
}

// Option customizes the gateway beyond Config.
type Option func(*gateway)

// WithTokenObserver registers a callback invoked with token usage per call.
func WithTokenObserver(fn func(prompt, completion int)) Option {
	return func(g *gateway) { g.onTokens = fn }
}

// WithCacheObserver registers a callback invoked per cache lookup.
func WithCacheObserver(fn func(hit bool)) Option {
	return func(g *gateway) { g.onCacheHit = fn }
}

// NewGateway creates a Gateway backed by an OpenAI-compatible provider.
func NewGateway(cfg *Config, opts ...Option) (Gateway, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm gateway: model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	} else if base, ok := providerDefaults[cfg.Provider]; ok {
		clientConfig.BaseURL = base
	}
	clientConfig.HTTPClient = newHTTPClient()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("llm gateway: cache init: %w", err)
	}

	g := &gateway{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		timeout:     time.Duration(timeout) * time.Second,
		temperature: cfg.Temperature,
		sem:         semaphore.NewWeighted(maxConcurrent),
		limiter:     rate.NewLimiter(rate.Limit(rps), int(maxConcurrent)),
		cache:       cache,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *gateway) Complete(ctx context.Context, prompt string, constraints Constraints) (string, error) {
	key := cacheKey(g.model, prompt, constraints)
	if cached, ok := g.cache.Get(key); ok {
		if g.onCacheHit != nil {
			g.onCacheHit(true)
		}
		return cached, nil
	}
	if g.onCacheHit != nil {
		g.onCacheHit(false)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", classify(err)
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", classify(err)
	}
	defer g.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	temperature := constraints.Temperature
	if temperature == 0 {
		temperature = g.temperature
	}
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   constraints.MaxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Warn("llm gateway: completion failed",
			"model", g.model,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	if g.onTokens != nil {
		g.onTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	slog.Debug("llm gateway: completion",
		"model", g.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds())

	content := resp.Choices[0].Message.Content
	g.cache.Add(key, content)
	return content, nil
}

// classify folds transport and provider errors into the gateway sentinels so
// agents never need to know about the underlying client library.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusRequestTimeout {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func cacheKey(model, prompt string, c Constraints) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%.2f\x00%s", model, c.MaxTokens, c.Temperature, prompt)
	return hex.EncodeToString(h.Sum(nil))
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
