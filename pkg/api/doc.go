// Package api assembles the HTTP surface: the versioned router, the
// middleware chain and the organization handlers.
//
// All routes live under /api/v1 and require a verified identity.
// Authorization is enforced per route by rbac.Gate middleware, so a
// handler body only ever runs on behalf of a caller that already
// holds the required permissions.
//
//	server := api.NewServer(api.Dependencies{...})
//	err := server.Run(ctx)
//
// Run serves the API listener and a separate health/metrics listener
// and blocks until the context is cancelled or a listener fails.
package api
