// Package handlers contains the reusable pieces of the HTTP interface:
// health checking and generic middleware.
//
// # Health Checks
//
// The HealthChecker interface allows registering named checks that run in
// parallel with a per-check timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("database", handlers.NewPingCheck(store))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//
// Liveness (/health) only reports failures of critical checks; readiness
// (/ready) fails when any check fails.
//
// # Middleware
//
//	h := handlers.ChainHandler(mux,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(1<<20),
//	)
package handlers
