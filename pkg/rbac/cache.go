package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/docuvault/docuvault/pkg/observability"
)

const decisionCacheType = "authz_decision"

// DecisionCache stores recent permission decisions in Redis under
// perm:{user}:{org}:{permission} keys with a short TTL. The cache is
// best-effort: a nil client or any Redis error behaves as a miss, and
// the evaluator falls through to the database.
type DecisionCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewDecisionCache creates a decision cache. client may be nil, in
// which case every lookup is a miss and writes are dropped.
func NewDecisionCache(client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *DecisionCache {
	return &DecisionCache{
		client:  client,
		ttl:     ttl,
		metrics: metrics,
	}
}

func decisionKey(userID string, orgID int64, permission string) string {
	return fmt.Sprintf("perm:%s:%d:%s", userID, orgID, permission)
}

// Get returns the cached decision and whether a usable entry was found.
func (c *DecisionCache) Get(ctx context.Context, userID string, orgID int64, permission string) (allowed bool, found bool) {
	if c.client == nil {
		return false, false
	}

	val, err := c.client.Get(ctx, decisionKey(userID, orgID, permission)).Result()
	if err != nil {
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.WithLabelValues(decisionCacheType).Inc()
		}
		return false, false
	}

	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(decisionCacheType).Inc()
	}
	return val == "1", true
}

// Set stores a decision. Errors are dropped.
func (c *DecisionCache) Set(ctx context.Context, userID string, orgID int64, permission string, allowed bool) {
	if c.client == nil {
		return
	}

	val := "0"
	if allowed {
		val = "1"
	}
	_ = c.client.Set(ctx, decisionKey(userID, orgID, permission), val, c.ttl).Err()
}

// InvalidateUser removes every cached decision for the user across all
// organizations. Called after membership or role writes.
func (c *DecisionCache) InvalidateUser(ctx context.Context, userID, reason string) error {
	return c.invalidatePattern(ctx, fmt.Sprintf("perm:%s:*", userID), reason)
}

// InvalidateUserOrg removes cached decisions for one (user, org) pair.
func (c *DecisionCache) InvalidateUserOrg(ctx context.Context, userID string, orgID int64, reason string) error {
	return c.invalidatePattern(ctx, fmt.Sprintf("perm:%s:%d:*", userID, orgID), reason)
}

func (c *DecisionCache) invalidatePattern(ctx context.Context, pattern, reason string) error {
	if c.client == nil {
		return nil
	}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan decision cache: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cached decisions: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if c.metrics != nil {
		c.metrics.CacheInvalidationsTotal.WithLabelValues(decisionCacheType, reason).Inc()
	}
	return nil
}
