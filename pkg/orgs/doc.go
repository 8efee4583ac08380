// Package orgs manages the organization lifecycle: creation with
// owner bootstrap, partial updates, membership add/update/remove, the
// per-user current-organization context, personal workspace bootstrap
// and the reconciliation sweep.
//
// Organization creation writes the organization row and the creator's
// org_owner membership in one transaction; an organization must never
// exist without a recoverable owner. The reconciler repairs anything
// that slips through (crashed creations, stale context pointers) on a
// cron schedule.
//
// The package depends on rbac for role lookups and decision-cache
// invalidation; rbac never imports orgs. The ContextStore implements
// rbac.ContextResolver so the authorization gate can resolve a user's
// current organization without a package cycle.
package orgs
