// Package rbac implements role-based access control for multi-tenant
// organizations.
//
// The package is organized around four pieces:
//
//   - Catalog: the reference data of named permissions (dotted
//     "resource.action" form, grouped by category) and named roles
//     mapping to permission sets. The catalog is seeded into the
//     database at startup and validates permission names used in
//     route configuration.
//
//   - Store: raw SQL persistence for roles, permissions, system
//     admins, and membership-role lookups. Permission decisions
//     delegate to the user_has_permission database function so that
//     application code and direct data-layer access enforce the same
//     rule.
//
//   - Evaluator: HasPermission / HasAny / HasAll over (user, org,
//     permission). The evaluator is fail-closed: any store or cache
//     error yields deny, never an error surfaced to the gate.
//     Decisions are cached in Redis with a short TTL and invalidated
//     on membership writes.
//
//   - Gate: HTTP middleware composing identity, organization context
//     resolution, and the evaluator. A successful check attaches a
//     Grant to the request context for downstream handlers.
//
// Example wiring:
//
//	catalog, err := rbac.NewCatalog(store, data, cfg.RBAC.CatalogCacheSize)
//	evaluator := rbac.NewEvaluator(store, cache, metrics, logger)
//	gate := rbac.NewGate(evaluator, store, catalog, resolver, logger)
//
//	router.Handle("/organizations/{org_id}",
//	    gate.RequirePermissions(rbac.PermOrgManage)(http.HandlerFunc(update)),
//	).Methods("PUT")
package rbac
