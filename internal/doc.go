// Package internal groups helpers private to tollgate.
//
// # Sub-packages
//
//   - attempts — sliding-window login attempt tracking for the lockout rules
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - kv — the key/value store abstraction (in-memory and Redis)
//
// # What this package must NOT do
//
//   - Export types that appear in the public tollgate API.
//   - Be imported by any package outside the tollgate module.
package internal
