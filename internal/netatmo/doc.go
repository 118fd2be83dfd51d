// Package netatmo implements the vendor side of the bridge: the Netatmo
// weather API client and the OAuth2 session that authenticates it.
//
// # Session lifecycle
//
// The Session is created once at startup, seeded from the persisted refresh
// token if one exists, and lives for the whole process. It is never
// destroyed — a rejected refresh token downgrades it to the unauthenticated
// state, from which a new authorization-code exchange (driven by the
// callback listener) re-authenticates it.
//
// # Refresh mutual exclusion
//
// Netatmo rotates the refresh token on every refresh, so two concurrent
// token exchanges invalidate each other. The Session therefore guards the
// exchange with an explicit in-flight flag: while one refresh is running,
// any other caller that needs a refreshed token gets ErrRefreshInProgress
// immediately and is expected to back off and retry. This is the single
// most important correctness property of the package.
//
// # Failure taxonomy
//
//   - ErrNotAuthenticated: operator action required — surface the
//     authorization URL
//   - ErrRefreshInProgress: transient — retry after a short delay
//   - ErrRefreshRejected: refresh token revoked — persisted copy is deleted,
//     session is unauthenticated again
//   - anything else, including vendor rate limiting: transport trouble —
//     transient, no state change
package netatmo
