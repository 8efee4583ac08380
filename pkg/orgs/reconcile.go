package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/docuvault/docuvault/pkg/observability"
)

// Reconciler sweeps for inconsistencies the transactional paths
// cannot fully rule out: organizations left without any active member
// by a crashed creation, and context pointers referencing memberships
// that no longer exist.
type Reconciler struct {
	db      *sql.DB
	metrics *observability.Metrics
	logger  *observability.Logger
	cron    *cron.Cron
	timeout time.Duration
}

// NewReconciler creates a reconciliation sweeper.
func NewReconciler(db *sql.DB, metrics *observability.Metrics, logger *observability.Logger) *Reconciler {
	return &Reconciler{
		db:      db,
		metrics: metrics,
		logger:  logger,
		timeout: time.Minute,
	}
}

// Start schedules the sweep with a cron expression, e.g. "@every 1h".
func (r *Reconciler) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		defer observability.RecoverPanic(r.logger, "reconcile sweep")

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.RunSweep(ctx); err != nil {
			r.logger.WithError(err).Error("reconcile sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reconcile sweep: %w", err)
	}

	c.Start()
	r.cron = c
	r.logger.WithField("schedule", schedule).Info("reconcile sweep scheduled")
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RunSweep performs one reconciliation pass.
func (r *Reconciler) RunSweep(ctx context.Context) error {
	if err := r.repairMemberlessOrganizations(ctx); err != nil {
		return err
	}
	return r.repairStaleContexts(ctx)
}

// repairMemberlessOrganizations deletes organizations with no active
// member at all. Such rows can only come from a creation that crashed
// between the organization insert and the owner-membership insert; a
// grace period keeps in-flight creations out of the sweep.
func (r *Reconciler) repairMemberlessOrganizations(ctx context.Context) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM organizations o
		WHERE NOT EXISTS (
			SELECT 1 FROM organization_members m
			WHERE m.organization_id = o.id AND m.is_active = TRUE
		)
		AND o.created_at < NOW() - INTERVAL '1 hour'
	`)
	if err != nil {
		return fmt.Errorf("failed to repair memberless organizations: %w", err)
	}

	r.recordRepairs(result, "memberless_org")
	return nil
}

// repairStaleContexts deletes context pointers whose user no longer
// has an active membership in the pointed-at organization.
func (r *Reconciler) repairStaleContexts(ctx context.Context) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM user_organization_context c
		WHERE NOT EXISTS (
			SELECT 1 FROM organization_members m
			WHERE m.organization_id = c.current_organization_id
			  AND m.user_id = c.user_id
			  AND m.is_active = TRUE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to repair stale contexts: %w", err)
	}

	r.recordRepairs(result, "stale_context")
	return nil
}

func (r *Reconciler) recordRepairs(result sql.Result, repair string) {
	count, err := result.RowsAffected()
	if err != nil || count == 0 {
		return
	}

	if r.metrics != nil {
		r.metrics.ReconcileRepairsTotal.WithLabelValues(repair).Add(float64(count))
	}
	r.logger.WithFields(map[string]interface{}{
		"repair": repair,
		"count":  count,
	}).Info("reconcile repaired rows")
}
