// Package aegis is an embeddable authentication token and session
// security engine: JWT access tokens, rotating opaque refresh tokens
// with family-wide reuse detection, trust-scored sessions, a TOTP +
// backup-code MFA flow, and a persistent failed-attempt lockout
// policy.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// aegis is the public surface, exposing [Engine], [Builder], [Config],
// and the result value types. The credential store (users, sessions)
// is supplied by the caller through [UserStore] and session.Store; the
// coordination store (token families, reuse markers, MFA challenges)
// is Redis and is the single source of truth for that state across
// server instances.
//
// # Security posture
//
//   - Refresh rotation is a single atomic check-and-set in the
//     coordination store; a replayed credential revokes its whole
//     family and the paired session.
//   - Verification paths fail closed on coordination-store errors.
//   - Lockout counters live on the user record and persist even when
//     the enclosing call returns an error.
//   - Raw refresh secrets and backup codes are never stored; only
//     SHA-256 digests are.
package aegis
