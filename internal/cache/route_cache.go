// Package cache provides the Redis-backed cache for active approval routes.
// Route lookups happen on every "send for approval" UI render, while routes
// themselves change rarely.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ledgerline/be-payment-approvals/internal/repository"
)

const routeKeyPrefix = "approvals:route:"

// RouteCache caches the active route (with stages) per invoice type. All
// operations are best-effort: Redis failures are logged and treated as cache
// misses, never surfaced to the caller.
type RouteCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewRouteCache creates a RouteCache over an existing Redis client.
func NewRouteCache(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *RouteCache {
	return &RouteCache{rdb: rdb, ttl: ttl, log: log}
}

type cachedRoute struct {
	Route *repository.ApprovalRoute `json:"route"`
}

// Get returns the cached route for an invoice type. The second result is
// false on miss or any Redis error.
func (c *RouteCache) Get(ctx context.Context, invoiceTypeID string) (*repository.ApprovalRoute, bool) {
	data, err := c.rdb.Get(ctx, routeKeyPrefix+invoiceTypeID).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("invoice_type_id", invoiceTypeID).Msg("route cache: get failed")
		return nil, false
	}

	var cached cachedRoute
	if err := json.Unmarshal(data, &cached); err != nil {
		c.log.Warn().Err(err).Str("invoice_type_id", invoiceTypeID).Msg("route cache: corrupt entry")
		return nil, false
	}
	return cached.Route, true
}

// Set stores the route under its invoice type with the configured TTL.
func (c *RouteCache) Set(ctx context.Context, route *repository.ApprovalRoute) {
	data, err := json.Marshal(cachedRoute{Route: route})
	if err != nil {
		c.log.Warn().Err(err).Str("route_id", route.ID).Msg("route cache: marshal failed")
		return
	}
	if err := c.rdb.Set(ctx, routeKeyPrefix+route.InvoiceTypeID, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("route_id", route.ID).Msg("route cache: set failed")
	}
}

// Invalidate drops the cached route for an invoice type. Called whenever a
// route is saved or deactivated.
func (c *RouteCache) Invalidate(ctx context.Context, invoiceTypeID string) {
	if err := c.rdb.Del(ctx, routeKeyPrefix+invoiceTypeID).Err(); err != nil {
		c.log.Warn().Err(err).Str("invoice_type_id", invoiceTypeID).Msg("route cache: invalidate failed")
	}
}
