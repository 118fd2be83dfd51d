package netatmo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	// tokenExpirySkew treats a token as expired slightly before its stated
	// expiry so an API call never departs with a token that dies in flight.
	tokenExpirySkew = 30 * time.Second

	// refreshRetryInterval is how soon a caller should come back after
	// hitting ErrRefreshInProgress.
	refreshRetryInterval = 3 * time.Second

	// authState is the fixed OAuth2 state parameter. AuthorizationURL must
	// return the same URL on every call; the single-operator callback
	// listener does not track per-request state.
	authState = "netatmo-bridge"
)

// scopes requested during authorization. The bridge only reads station data.
var scopes = []string{"read_station"}

// TokenStore persists the refresh token across restarts.
// Satisfied by *tokenstore.Store.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Delete() error
}

// Logger is the minimal structured logging interface the session needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config carries the OAuth2 application identity and test seams.
type Config struct {
	ClientID     string
	ClientSecret string

	// CallbackURL is the redirect URL registered with the vendor. Fixed for
	// the process lifetime.
	CallbackURL string

	// BaseURL overrides the data API base URL. Empty means production.
	BaseURL string

	// Endpoint overrides the OAuth2 endpoints. Zero value means production.
	Endpoint oauth2.Endpoint
}

// Session owns the access/refresh token pair and every exchange with the
// vendor's OAuth2 endpoints. There is exactly one Session per process; it
// is created at startup and re-authenticated in place, never replaced.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Token state is guarded by a
//     mutex; the refreshing flag serialises token exchanges (see package doc).
type Session struct {
	oauth *oauth2.Config
	api   *apiClient
	store TokenStore
	log   Logger

	mu         sync.Mutex
	token      *oauth2.Token
	refreshing bool
}

// NewSession builds the Session and seeds it from the persisted refresh
// token if one exists. A failing load is structural — logged, with the
// session starting unauthenticated — rather than fatal, so a corrupt data
// directory never prevents startup.
func NewSession(cfg Config, store TokenStore, log Logger) *Session {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = oauth2.Endpoint{
			AuthURL:  defaultBaseURL + authorizePath,
			TokenURL: defaultBaseURL + tokenPath,
		}
	}

	s := &Session{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		api:   newAPIClient(cfg.BaseURL),
		store: store,
		log:   log,
	}

	refreshToken, err := store.Load()
	switch {
	case err != nil:
		log.Error("failed to load cached refresh token, starting unauthenticated", "error", err)
	case refreshToken != "":
		// Access token is minted lazily by the first refresh.
		s.token = &oauth2.Token{RefreshToken: refreshToken}
		log.Info("restored session from cached refresh token")
	default:
		log.Info("no cached refresh token, authorization required",
			"authorization_url", s.AuthorizationURL())
	}

	return s
}

// AuthorizationURL returns the URL the operator must visit to authorize the
// bridge. Deterministic; no side effects.
func (s *Session) AuthorizationURL() string {
	return s.oauth.AuthCodeURL(authState)
}

// Authenticated reports whether the session holds a token pair. It does not
// imply the pair is still accepted by the vendor — a refresh may yet reject it.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil
}

// Authorize completes the OAuth2 handshake from the callback's raw HTTP
// request line (e.g. "GET /netatmo/auth?code=abc123 HTTP/1.1").
//
// On success the exchanged token pair is stored and persisted and the
// session is authenticated. On any failure prior state is left untouched.
//
// Parameters:
//   - ctx: Context for the token exchange
//   - requestLine: The callback request's first line, verbatim
//
// Returns:
//   - error: Parse failure, exchange rejection, transport trouble, or
//     ErrRefreshInProgress while a refresh exchange is in flight
func (s *Session) Authorize(ctx context.Context, requestLine string) error {
	code, err := parseAuthCode(requestLine)
	if err != nil {
		return err
	}

	// Exclusive with refresh: an operator re-authorizing while a keepalive
	// refresh is in flight must not race a second token exchange.
	if err := s.beginExchange(); err != nil {
		return err
	}
	defer s.endExchange()

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("netatmo: exchanging authorization code: %w", err)
	}

	s.log.Info("authorization code exchanged, session authenticated",
		"expiry", tok.Expiry)
	s.adoptToken(tok)

	return nil
}

// FetchModules returns the current module list, transparently refreshing
// the access token when it is expired or rejected.
//
// Returns:
//   - []Module: Stations and attached modules, flattened
//   - error: ErrNotAuthenticated, ErrRefreshInProgress, ErrRefreshRejected,
//     or a wrapped transport error
func (s *Session) FetchModules(ctx context.Context) ([]Module, error) {
	access, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	modules, err := s.api.fetchStations(ctx, access)
	if errors.Is(err, errUnauthorized) {
		// Token revoked server-side before its stated expiry: refresh once
		// and retry.
		if refreshErr := s.refresh(ctx); refreshErr != nil {
			return nil, refreshErr
		}

		s.mu.Lock()
		access = s.token.AccessToken
		s.mu.Unlock()

		modules, err = s.api.fetchStations(ctx, access)
	}

	return modules, err
}

// Keepalive refreshes the access token if it would expire within min,
// so the token never silently lapses while the bridge is idle.
//
// Parameters:
//   - ctx: Context for a possible refresh exchange
//   - min: The caller's intended wait until the next Keepalive call
//
// Returns:
//   - time.Duration: How long to wait before calling again — min, or a
//     short retry interval while another refresh is in flight
//   - error: ErrNotAuthenticated, ErrRefreshRejected, or transport trouble;
//     transient for the scheduler, which logs and keeps looping
func (s *Session) Keepalive(ctx context.Context, min time.Duration) (time.Duration, error) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()

	if tok == nil {
		return min, ErrNotAuthenticated
	}

	if tokenOutlives(tok, min) {
		return min, nil
	}

	err := s.refresh(ctx)
	switch {
	case err == nil:
		return min, nil
	case errors.Is(err, ErrRefreshInProgress):
		return refreshRetryInterval, nil
	default:
		return min, err
	}
}

// accessToken returns a usable access token, refreshing first when the
// current one is missing or about to expire.
func (s *Session) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()

	if tok == nil {
		return "", ErrNotAuthenticated
	}

	if tok.AccessToken != "" && tokenOutlives(tok, 0) {
		return tok.AccessToken, nil
	}

	if err := s.refresh(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.AccessToken, nil
}

// refresh performs one refresh-token exchange.
//
// The refreshing flag is checked-and-set under the mutex BEFORE any network
// I/O: a second caller arriving while the exchange is in flight gets
// ErrRefreshInProgress instead of racing a parallel exchange that would
// invalidate the rotated refresh token.
func (s *Session) refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return ErrRefreshInProgress
	}
	if s.token == nil || s.token.RefreshToken == "" {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	refreshToken := s.token.RefreshToken
	s.refreshing = true
	s.mu.Unlock()

	defer s.endExchange()

	tok, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) && refreshRejected(retrieve) {
			// A definitive vendor rejection: the pair is dead. Forget it,
			// delete the persisted copy, downgrade to unauthenticated.
			s.invalidate()
			return fmt.Errorf("%w: %s", ErrRefreshRejected, retrieve.Response.Status)
		}

		// Transport trouble or vendor throttling: keep the pair, the next
		// attempt may succeed.
		return fmt.Errorf("netatmo: refreshing token: %w", err)
	}

	s.log.Info("access token refreshed", "expiry", tok.Expiry)
	s.adoptToken(tok)

	return nil
}

// beginExchange claims the in-flight token exchange slot, failing with
// ErrRefreshInProgress when another exchange holds it.
func (s *Session) beginExchange() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshing {
		return ErrRefreshInProgress
	}
	s.refreshing = true
	return nil
}

// endExchange releases the in-flight token exchange slot.
func (s *Session) endExchange() {
	s.mu.Lock()
	s.refreshing = false
	s.mu.Unlock()
}

// refreshRejected reports whether a token-endpoint failure is a definitive
// OAuth2 rejection of the refresh token (invalid_grant, invalid_client —
// delivered as 400 or 401). Everything else, notably 429 rate limiting and
// 408, is vendor throttling or outage: the pair stays valid.
func refreshRejected(err *oauth2.RetrieveError) bool {
	if err.Response == nil {
		return false
	}
	switch err.Response.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized:
		return true
	default:
		return false
	}
}

// adoptToken installs a new token pair and persists the rotated refresh
// token. A persistence failure is structural: logged, with the session
// continuing on the in-memory pair.
func (s *Session) adoptToken(tok *oauth2.Token) {
	s.mu.Lock()
	// Some OAuth2 servers omit the refresh token when it is unchanged.
	if tok.RefreshToken == "" && s.token != nil {
		tok.RefreshToken = s.token.RefreshToken
	}
	s.token = tok
	refreshToken := tok.RefreshToken
	s.mu.Unlock()

	if refreshToken == "" {
		s.log.Warn("vendor returned no refresh token, nothing to persist")
		return
	}

	if err := s.store.Save(refreshToken); err != nil {
		s.log.Error("failed to persist refresh token, continuing in-memory only",
			"error", err)
	}
}

// invalidate drops the token pair and the persisted copy after a vendor
// rejection. The session is unauthenticated afterwards.
func (s *Session) invalidate() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()

	if err := s.store.Delete(); err != nil {
		s.log.Error("failed to delete persisted refresh token", "error", err)
	}

	s.log.Warn("refresh token rejected by vendor, re-authorization required",
		"authorization_url", s.AuthorizationURL())
}

// tokenOutlives reports whether the token remains valid for at least d
// beyond the expiry skew. Tokens without an expiry are assumed valid.
func tokenOutlives(tok *oauth2.Token, d time.Duration) bool {
	if tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return time.Until(tok.Expiry) > d+tokenExpirySkew
}

// parseAuthCode extracts the authorization code from the callback's raw
// HTTP request line.
func parseAuthCode(requestLine string) (string, error) {
	fields := strings.Fields(requestLine)
	if len(fields) < 2 {
		return "", fmt.Errorf("netatmo: malformed callback request line %q", requestLine)
	}

	target, err := url.ParseRequestURI(fields[1])
	if err != nil {
		return "", fmt.Errorf("netatmo: parsing callback target: %w", err)
	}

	code := target.Query().Get("code")
	if code == "" {
		return "", errors.New("netatmo: callback carries no authorization code")
	}

	return code, nil
}
