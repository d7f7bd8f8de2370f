package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/Laisky/zap"

	"github.com/ahrav/go-maestro/internal/ports"
)

// CachedTool serves repeated read-only calls from a CacheStore. Calls are
// keyed by tool name and the canonical form of their arguments, so two
// invocations differing only in key order or whitespace share an entry.
// Error results are not cached.
type CachedTool struct {
	next   ports.Tool
	store  ports.CacheStore
	ttl    time.Duration
	logger *zap.Logger
}

var _ ports.Tool = (*CachedTool)(nil)

// WithCache wraps t in a CachedTool. Mutating tools are returned unchanged
// because replaying a side effect from cache would silently skip it.
func WithCache(t ports.Tool, store ports.CacheStore, ttl time.Duration, logger *zap.Logger) ports.Tool {
	if t.Mutating() || store == nil {
		return t
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedTool{next: t, store: store, ttl: ttl, logger: logger}
}

// Definition returns the wrapped tool's declaration.
func (c *CachedTool) Definition() ports.ToolDefinition { return c.next.Definition() }

// Mutating always reports false.
func (c *CachedTool) Mutating() bool { return false }

// Invoke returns a cached result when one exists and otherwise calls the
// wrapped tool. Cache failures degrade to a direct call.
func (c *CachedTool) Invoke(ctx context.Context, inv ports.ToolInvocation) (any, error) {
	name := c.next.Definition().Name
	key, err := cacheKey(name, inv)
	if err != nil {
		return c.next.Invoke(ctx, inv)
	}

	if v, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn("tool cache read failed", zap.String("tool", name), zap.Error(err))
	} else if ok {
		c.logger.Debug("tool cache hit", zap.String("tool", name))
		return v, nil
	}

	result, err := c.next.Invoke(ctx, inv)
	if err != nil || IsErrorResult(result) {
		return result, err
	}

	if err := c.store.Set(ctx, key, result, c.ttl); err != nil {
		c.logger.Warn("tool cache write failed", zap.String("tool", name), zap.Error(err))
	}
	return result, nil
}

// cacheKey hashes the tool name, the canonical arguments and the turn date.
// The date is part of the key because relative words such as "내일"
// resolve differently on different days.
func cacheKey(name string, inv ports.ToolInvocation) (string, error) {
	var args any
	if len(inv.Arguments) > 0 {
		if err := json.Unmarshal(inv.Arguments, &args); err != nil {
			return "", err
		}
	}
	// encoding/json sorts map keys, which makes the encoding canonical.
	canonical, err := json.Marshal(args)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(canonical)
	h.Write([]byte{0})
	h.Write([]byte(inv.Today))
	return name + ":" + hex.EncodeToString(h.Sum(nil)), nil
}
