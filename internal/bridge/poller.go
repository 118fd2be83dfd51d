package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/nerrad567/netatmo-bridge/internal/netatmo"
)

const (
	// refreshRetryBackoff and refreshRetryMax bound how long one poll cycle
	// waits for an in-flight token refresh before giving up until the next
	// cadence tick.
	refreshRetryBackoff = 3 * time.Second
	refreshRetryMax     = 3
)

// poller fetches the vendor's module list on a fixed cadence and feeds it
// to the synchronizer. Every kind of vendor failure is transient at this
// level: the cycle is logged and skipped, the published tree untouched.
type poller struct {
	session      Session
	sync         *synchronizer
	interval     time.Duration
	retryBackoff time.Duration
	log          Logger
}

func newPoller(session Session, sync *synchronizer, interval time.Duration, log Logger) *poller {
	return &poller{
		session:      session,
		sync:         sync,
		interval:     interval,
		retryBackoff: refreshRetryBackoff,
		log:          log,
	}
}

// Run polls until ctx is cancelled. The first cycle runs immediately so a
// freshly started bridge publishes without waiting out a full interval.
func (p *poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.cycle(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// cycle performs one fetch-and-sync pass.
func (p *poller) cycle(ctx context.Context) {
	modules, err := p.fetchModules(ctx)

	switch {
	case err == nil:
		if syncErr := p.sync.Sync(modules); syncErr != nil {
			p.log.Error("failed to sync device tree, retrying next cycle", "error", syncErr)
		}
	case errors.Is(err, netatmo.ErrNotAuthenticated):
		p.log.Info("not authenticated, authorize the bridge to start publishing",
			"authorization_url", p.session.AuthorizationURL())
	case errors.Is(err, netatmo.ErrRefreshInProgress):
		p.log.Warn("token refresh still in flight, skipping poll cycle")
	case errors.Is(err, netatmo.ErrRefreshRejected):
		p.log.Warn("refresh token rejected, re-authorization required",
			"authorization_url", p.session.AuthorizationURL())
	case ctx.Err() != nil:
		// Shutdown mid-cycle; Run exits on the next select.
	default:
		p.log.Warn("poll cycle failed, keeping published tree", "error", err)
	}
}

// fetchModules retrieves the module list, waiting out a concurrent token
// refresh with a bounded constant backoff rather than blocking the cycle
// indefinitely.
func (p *poller) fetchModules(ctx context.Context) ([]netatmo.Module, error) {
	var modules []netatmo.Module

	backoff := retry.WithMaxRetries(refreshRetryMax, retry.NewConstant(p.retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		modules, err = p.session.FetchModules(ctx)
		if errors.Is(err, netatmo.ErrRefreshInProgress) {
			return retry.RetryableError(err)
		}
		return err
	})

	return modules, err
}
