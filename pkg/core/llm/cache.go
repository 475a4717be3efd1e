package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rating_calculator/pkg/core/logging"
)

// CacheConfig configures CachedEmbedder.
type CacheConfig struct {
	// Size is the number of vectors kept in process.
	Size int
	// TTL of the shared redis entries.
	TTL       time.Duration
	KeyPrefix string
}

// DefaultCacheConfig returns the default embedding cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Size:      4096,
		TTL:       24 * time.Hour,
		KeyPrefix: "emb:",
	}
}

// CachedEmbedder memoizes an Embedder by text, first in an in-process LRU and
// then, when a redis client is given, in redis.
type CachedEmbedder struct {
	provider Embedder
	local    *lru.Cache
	redis    *goredis.Client
	config   CacheConfig
	log      *zap.SugaredLogger
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps provider. redis may be nil.
func NewCachedEmbedder(provider Embedder, redis *goredis.Client, config CacheConfig, log *zap.SugaredLogger) (*CachedEmbedder, error) {
	def := DefaultCacheConfig()
	if config.Size <= 0 {
		config.Size = def.Size
	}
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = def.KeyPrefix
	}
	local, err := lru.New(config.Size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{
		provider: provider,
		local:    local,
		redis:    redis,
		config:   config,
		log:      logging.OrNop(log),
	}, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(c.provider.Name() + "\x00" + text))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	if v, ok := c.local.Get(key); ok {
		return v.([]float32), true
	}
	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warnw("redis get error, falling back to provider", "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		c.log.Warnw("corrupt cached embedding, deleting", "key", key, "error", err)
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	c.local.Add(key, vec)
	return vec, true
}

func (c *CachedEmbedder) store(ctx context.Context, key string, vec []float32) {
	c.local.Add(key, vec)
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		c.log.Warnw("failed to cache embedding", "key", key, "error", err)
	}
}

// Embed returns cached vectors and embeds the misses in one provider call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		if vec, ok := c.lookup(ctx, c.cacheKey(t)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		c.log.Debugw("all embeddings from cache", "total", len(texts))
		return out, nil
	}

	c.log.Debugw("embedding cache miss", "total", len(texts), "uncached", len(missTexts))
	vecs, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("EMBEDDING_COUNT_MISMATCH: got %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, idx := range missIdx {
		out[idx] = vecs[j]
		c.store(ctx, c.cacheKey(missTexts[j]), vecs[j])
	}
	return out, nil
}

func (c *CachedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, c, text)
}

// Name returns the wrapped embedder's name.
func (c *CachedEmbedder) Name() string {
	return c.provider.Name()
}
