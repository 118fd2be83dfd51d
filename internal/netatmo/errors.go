package netatmo

import "errors"

// Domain-specific errors for the vendor session.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotAuthenticated is returned when no valid token pair exists.
	// Operator action is required: visit the authorization URL.
	ErrNotAuthenticated = errors.New("netatmo: not authenticated")

	// ErrRefreshInProgress is returned when a token refresh is already in
	// flight. Transient — back off briefly and retry rather than racing a
	// second exchange (concurrent exchanges invalidate each other's
	// refresh token).
	ErrRefreshInProgress = errors.New("netatmo: token refresh in progress")

	// ErrRefreshRejected is returned when the vendor rejects the refresh
	// token. The persisted copy has been deleted and the session is
	// unauthenticated; re-authorization is required.
	ErrRefreshRejected = errors.New("netatmo: refresh token rejected")

	// errUnauthorized signals an access-token rejection from the data API,
	// triggering one transparent refresh-and-retry inside the session.
	errUnauthorized = errors.New("netatmo: access token not accepted")
)
