package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cogents/memu-go/core"
)

// GatewayConfig configures the caching gateway.
type GatewayConfig struct {
	// CacheMaxCost bounds the cache in bytes of stored vectors.
	// Default: 64 MiB.
	CacheMaxCost int64

	// Timeout applies to each upstream call. Default: 10s.
	Timeout time.Duration

	// MaxRetries bounds retry attempts after the first call.
	// Default: 2; negative disables retries.
	MaxRetries int

	// RetryDelay is the base backoff delay, doubled per attempt.
	// Default: 200ms.
	RetryDelay time.Duration

	// BatchConcurrency bounds parallel upstream calls in EmbedBatch.
	// Default: 4.
	BatchConcurrency int
}

func (c *GatewayConfig) withDefaults() GatewayConfig {
	out := GatewayConfig{
		CacheMaxCost:     64 << 20,
		Timeout:          10 * time.Second,
		MaxRetries:       2,
		RetryDelay:       200 * time.Millisecond,
		BatchConcurrency: 4,
	}
	if c == nil {
		return out
	}
	if c.CacheMaxCost > 0 {
		out.CacheMaxCost = c.CacheMaxCost
	}
	if c.Timeout > 0 {
		out.Timeout = c.Timeout
	}
	if c.MaxRetries != 0 {
		out.MaxRetries = c.MaxRetries
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if c.RetryDelay > 0 {
		out.RetryDelay = c.RetryDelay
	}
	if c.BatchConcurrency > 0 {
		out.BatchConcurrency = c.BatchConcurrency
	}
	return out
}

// Gateway fronts an Embedder with a content-hash cache and bounded
// retries. It satisfies Embedder itself, so callers that only need
// single-text embedding can hold either.
type Gateway struct {
	upstream Embedder
	cache    *ristretto.Cache
	cfg      GatewayConfig
	logger   *zap.Logger
}

// NewGateway wraps upstream with caching and retry behavior.
func NewGateway(upstream Embedder, cfg *GatewayConfig, logger *zap.Logger) (*Gateway, error) {
	if upstream == nil {
		return nil, fmt.Errorf("upstream embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	resolved := cfg.withDefaults()

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     resolved.CacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Gateway{
		upstream: upstream,
		cache:    cache,
		cfg:      resolved,
		logger:   logger.With(zap.String("component", "embed_gateway")),
	}, nil
}

// Dimensions returns the upstream vector size.
func (g *Gateway) Dimensions() int { return g.upstream.Dimensions() }

// Embed returns the vector for text, from cache when the identical text
// was embedded before.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	key := contentHash(text)
	if cached, ok := g.cache.Get(key); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := g.callUpstream(ctx, text)
	if err != nil {
		return nil, err
	}

	g.cache.Set(key, vec, int64(len(vec)*4))
	g.cache.Wait()
	return vec, nil
}

// EmbedBatch embeds texts preserving input order, amortizing upstream
// overhead across a bounded number of parallel calls. Cached entries
// never reach the upstream.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.cfg.BatchConcurrency)

	for i, text := range texts {
		i, text := i, text
		grp.Go(func() error {
			vec, err := g.Embed(gctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// callUpstream performs the embedding call with per-attempt timeout and
// exponential backoff across attempts.
func (g *Gateway) callUpstream(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
			g.logger.Warn("embedding retry",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &core.UpstreamTimeoutError{Op: "embed", Err: ctx.Err()}
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		vec, err := g.upstream.Embed(callCtx, text)
		cancel()
		if err == nil {
			return vec, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			lastErr = &core.UpstreamTimeoutError{Op: "embed", Err: err}
		} else if errors.Is(err, context.Canceled) {
			return nil, &core.UpstreamTimeoutError{Op: "embed", Err: err}
		} else {
			lastErr = err
		}
	}
	return nil, &core.EmbeddingUnavailableError{Err: lastErr}
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
