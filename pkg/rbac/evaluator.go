package rbac

import (
	"context"
	"time"

	"github.com/docuvault/docuvault/pkg/observability"
)

// Evaluator answers permission questions for (user, organization)
// pairs. It is fail-closed: any store or cache failure yields deny,
// never an error, so callers can gate directly on the boolean.
type Evaluator struct {
	store   *Store
	cache   *DecisionCache
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewEvaluator creates a permission evaluator.
func NewEvaluator(store *Store, cache *DecisionCache, metrics *observability.Metrics, logger *observability.Logger) *Evaluator {
	return &Evaluator{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// HasPermission reports whether the user holds the permission in the
// organization, via their active membership's role.
func (e *Evaluator) HasPermission(ctx context.Context, userID string, orgID int64, permission string) bool {
	start := time.Now()

	if allowed, found := e.cache.Get(ctx, userID, orgID, permission); found {
		e.observe(permission, allowed, "cache", start)
		return allowed
	}

	allowed, err := e.store.UserHasPermission(ctx, userID, orgID, permission)
	if err != nil {
		if e.metrics != nil {
			e.metrics.AuthzOracleErrorsTotal.WithLabelValues("user_has_permission").Inc()
		}
		e.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id":    userID,
			"org_id":     orgID,
			"permission": permission,
		}).Warn("permission check failed, denying")
		e.observe(permission, false, "oracle", start)
		return false
	}

	e.cache.Set(ctx, userID, orgID, permission, allowed)
	e.observe(permission, allowed, "oracle", start)
	return allowed
}

// HasAny reports whether the user holds at least one of the
// permissions. It short-circuits on the first allow.
func (e *Evaluator) HasAny(ctx context.Context, userID string, orgID int64, permissions []string) bool {
	for _, permission := range permissions {
		if e.HasPermission(ctx, userID, orgID, permission) {
			return true
		}
	}
	return false
}

// HasAll reports whether the user holds every permission. It
// short-circuits on the first deny.
func (e *Evaluator) HasAll(ctx context.Context, userID string, orgID int64, permissions []string) bool {
	for _, permission := range permissions {
		if !e.HasPermission(ctx, userID, orgID, permission) {
			return false
		}
	}
	return true
}

func (e *Evaluator) observe(permission string, allowed bool, source string, start time.Time) {
	if e.metrics == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	e.metrics.AuthzDecisionsTotal.WithLabelValues(decision, permission).Inc()
	e.metrics.AuthzCheckDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}
