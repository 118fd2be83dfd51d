package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// callbackPath is where the vendor redirects the operator's browser after
// the consent screen. Fixed; it is part of the registered redirect URL.
const callbackPath = "/netatmo/auth"

const (
	listenerReadTimeout     = 10 * time.Second
	listenerWriteTimeout    = 10 * time.Second
	listenerShutdownTimeout = 5 * time.Second
)

// listener is the authorization callback HTTP surface. It exists to catch
// a single browser redirect, but stays up for the process lifetime so the
// operator can re-authorize whenever the vendor invalidates the session.
type listener struct {
	session Session
	addr    string
	log     Logger
}

func newListener(session Session, addr string, log Logger) *listener {
	return &listener{
		session: session,
		addr:    addr,
		log:     log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (l *listener) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         l.addr,
		Handler:      l.routes(),
		ReadTimeout:  listenerReadTimeout,
		WriteTimeout: listenerWriteTimeout,
	}
	// One request per connection; callbacks are rare one-shot redirects.
	srv.SetKeepAlivesEnabled(false)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	l.log.Info("authorization callback listener started", "addr", l.addr, "path", callbackPath)

	select {
	case err := <-errCh:
		return fmt.Errorf("bridge: callback listener: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), listenerShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge: callback listener shutdown: %w", err)
	}
	return nil
}

// routes builds the listener's router: the callback itself plus a small
// liveness endpoint. Everything else is 404.
func (l *listener) routes() http.Handler {
	r := chi.NewRouter()
	r.Get(callbackPath, l.handleCallback)
	r.Get("/healthz", l.handleHealthz)
	return r
}

// handleCallback completes the OAuth2 handshake. The session consumes the
// raw request line, reconstructed from the parsed request.
func (l *listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	requestLine := fmt.Sprintf("%s %s %s", r.Method, r.URL.RequestURI(), r.Proto)

	if err := l.session.Authorize(r.Context(), requestLine); err != nil {
		l.log.Warn("authorization callback rejected", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintln(w, "Authorization failed. Check the bridge logs and try again.")
		return
	}

	l.log.Info("authorization complete")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Authorization complete. The bridge is now connected; you can close this tab.")
}

// handleHealthz reports process liveness and authentication state.
func (l *listener) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","authenticated":%t}`+"\n", l.session.Authenticated())
}
