package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/netatmo-bridge/internal/netatmo"
)

// keepaliveLoop keeps the access token alive while the bridge is idle.
// Each pass asks the session to refresh if the token would expire within
// the configured interval; the session answers with how long to wait
// before asking again.
type keepaliveLoop struct {
	session  Session
	interval time.Duration
	log      Logger
}

func newKeepaliveLoop(session Session, interval time.Duration, log Logger) *keepaliveLoop {
	return &keepaliveLoop{
		session:  session,
		interval: interval,
		log:      log,
	}
}

// Run loops until ctx is cancelled. Session errors are transient here —
// logged, with the loop carrying on at its configured cadence.
func (k *keepaliveLoop) Run(ctx context.Context) error {
	timer := time.NewTimer(k.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		wait, err := k.session.Keepalive(ctx, k.interval)
		switch {
		case err == nil:
		case errors.Is(err, netatmo.ErrNotAuthenticated):
			k.log.Debug("keepalive idle, not authenticated")
		case errors.Is(err, netatmo.ErrRefreshRejected):
			k.log.Warn("refresh token rejected, re-authorization required",
				"authorization_url", k.session.AuthorizationURL())
		case ctx.Err() != nil:
			return nil
		default:
			k.log.Warn("keepalive refresh failed, retrying next pass", "error", err)
		}

		// The session may ask to come back sooner, never later.
		if wait <= 0 || wait > k.interval {
			wait = k.interval
		}
		timer.Reset(wait)
	}
}
