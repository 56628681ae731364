// Package tollgate is a multi-scheme authentication gateway: HTTP Basic
// credential verification with sliding-window lockout, JWT access/refresh
// token pairs with session tracking and revocation, and an HTTP dispatcher
// that routes requests to whichever scheme their Authorization header
// carries.
//
// Build a gateway with the fluent builder:
//
//	gw, err := tollgate.New().
//		WithConfig(cfg).
//		WithDirectory(users).
//		Build()
//
// By default state lives in an in-process store; pass WithRedis to share
// lockouts, sessions, and revocations across instances.
//
// HTTP handlers are wrapped through the middleware package:
//
//	d, _ := middleware.NewDispatcher(gw)
//	mux.Handle("/api/", d.Authenticate(apiHandler))
package tollgate
