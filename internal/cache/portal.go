package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/apimplane/apim/internal/events"
	"github.com/apimplane/apim/internal/metrics"
)

const portalKeyPrefix = "portal:"

// PortalOptions configures the portal response cache.
type PortalOptions struct {
	LocalSize int
	LocalTTL  time.Duration
	RemoteTTL time.Duration
}

// DefaultPortalOptions returns the defaults used by the server.
func DefaultPortalOptions() PortalOptions {
	return PortalOptions{
		LocalSize: 1024,
		LocalTTL:  30 * time.Second,
		RemoteTTL: 5 * time.Minute,
	}
}

// PortalCache caches rendered portal responses per environment. Entries
// live in a process-local LRU in front of Redis. Redis is optional.
type PortalCache struct {
	local     *expirable.LRU[string, []byte]
	remote    *Cache
	remoteTTL time.Duration
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewPortalCache creates a portal cache. remote may be nil.
func NewPortalCache(remote *Cache, opts PortalOptions, recorder metrics.Recorder, logger *slog.Logger) *PortalCache {
	def := DefaultPortalOptions()
	if opts.LocalSize <= 0 {
		opts.LocalSize = def.LocalSize
	}
	if opts.LocalTTL <= 0 {
		opts.LocalTTL = def.LocalTTL
	}
	if opts.RemoteTTL <= 0 {
		opts.RemoteTTL = def.RemoteTTL
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PortalCache{
		local:     expirable.NewLRU[string, []byte](opts.LocalSize, nil, opts.LocalTTL),
		remote:    remote,
		remoteTTL: opts.RemoteTTL,
		metrics:   recorder,
		logger:    logger.With("component", "portal_cache"),
	}
}

func portalKey(environmentID, key string) string {
	return portalKeyPrefix + environmentID + ":" + key
}

// Get returns a cached body. Redis errors count as misses.
func (p *PortalCache) Get(ctx context.Context, environmentID, key string) ([]byte, bool) {
	k := portalKey(environmentID, key)
	if body, ok := p.local.Get(k); ok {
		p.metrics.IncPortalCacheHit("local")
		return body, true
	}

	if p.remote != nil {
		body, err := p.remote.client.Get(ctx, k).Bytes()
		switch {
		case err == nil:
			p.local.Add(k, body)
			p.metrics.IncPortalCacheHit("redis")
			return body, true
		case !errors.Is(err, redis.Nil):
			p.logger.Warn("portal cache read failed", "key", k, "error", err)
		}
	}

	p.metrics.IncPortalCacheMiss()
	return nil, false
}

// Set stores a body in both tiers.
func (p *PortalCache) Set(ctx context.Context, environmentID, key string, body []byte) {
	k := portalKey(environmentID, key)
	p.local.Add(k, body)
	if p.remote == nil {
		return
	}
	if err := p.remote.client.Set(ctx, k, body, p.remoteTTL).Err(); err != nil {
		p.logger.Warn("portal cache write failed", "key", k, "error", err)
	}
}

// InvalidateEnvironment drops every cached response of an environment.
// The local tier is purged entirely.
func (p *PortalCache) InvalidateEnvironment(ctx context.Context, environmentID string) error {
	p.local.Purge()
	if p.remote == nil {
		return nil
	}

	var keys []string
	iter := p.remote.client.Scan(ctx, 0, portalKey(environmentID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan portal keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return p.remote.client.Del(ctx, keys...).Err()
}

// HandleEvent invalidates the environment an API event belongs to. It has
// the signature of an events.Handler.
func (p *PortalCache) HandleEvent(ctx context.Context, event events.Event) error {
	if event.EnvironmentID == "" || !affectsPortal(event.Type) {
		return nil
	}
	return p.InvalidateEnvironment(ctx, event.EnvironmentID)
}

func affectsPortal(eventType string) bool {
	for _, prefix := range []string{"API_", "PLAN_", "SUBSCRIPTION_", "MEMBERSHIP_"} {
		if strings.HasPrefix(eventType, prefix) {
			return true
		}
	}
	return false
}
