// Package middleware provides HTTP middleware for authentication,
// organization context and rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: bearer-token authentication
//
//	authn := middleware.NewAuthMiddleware(provider, false)
//	router.Use(authn.Handler)
//	// Verifies the Authorization header and attaches auth.Context
//
// OrgContextMiddleware: loads the organization named in the route
//
//	router.Use(middleware.OrgContextMiddleware(orgService))
//	// Resolves {org_id} or {org_slug}, membership-filtered, and
//	// attaches *orgs.Organization under contextkeys.OrgKey
//
// RateLimitMiddleware: Redis-backed fixed-window rate limiting
//
//	limiter := middleware.NewRateLimiter(redisClient, middleware.DefaultRateLimitConfig(), "")
//	router.Use(middleware.RateLimitMiddleware(limiter))
//
// The limiter is shared across instances and keyed by authenticated
// user, falling back to the client address for anonymous requests.
// Redis failures fail open so an outage degrades to unlimited rather
// than unavailable.
//
// # Related Packages
//
//   - pkg/auth: token verification
//   - pkg/orgs: organization lookup
//   - pkg/rbac: permission gates applied per route
package middleware
