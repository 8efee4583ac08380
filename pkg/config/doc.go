// Package config loads application configuration from environment variables.
//
// All settings use the DOCUVAULT_ prefix and fall back to sensible defaults,
// so a development instance only needs DOCUVAULT_POSTGRES_URL and auth
// provider settings:
//
//	DOCUVAULT_POSTGRES_URL=postgres://localhost/docuvault?sslmode=disable
//	DOCUVAULT_AUTH_PROVIDER=static
//	DOCUVAULT_AUTH_STATIC_TOKENS=devtoken:b9f3a7d2-1c44-4df0-9a6b-2f1a8c3d5e70:dev@example.com
//
// Load and validate:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Validation runs at load time so a misconfigured instance fails fast
// instead of serving requests with partial settings.
package config
