package bridge

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/netatmo-bridge/internal/homie"
	"github.com/nerrad567/netatmo-bridge/internal/netatmo"
)

// Logger defines the logging interface the bridge needs. Compatible with
// logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Session is the vendor session surface the bridge drives.
// Satisfied by *netatmo.Session.
type Session interface {
	AuthorizationURL() string
	Authenticated() bool
	Authorize(ctx context.Context, requestLine string) error
	FetchModules(ctx context.Context) ([]netatmo.Module, error)
	Keepalive(ctx context.Context, min time.Duration) (time.Duration, error)
}

// Options wires the bridge's collaborators and cadences.
type Options struct {
	Session   Session
	Publisher homie.Publisher

	// ListenAddr is the callback listener's bind address, host:port.
	ListenAddr string

	// Homie device identity.
	Domain     string
	DeviceID   string
	DeviceName string

	PollInterval      time.Duration
	KeepaliveInterval time.Duration

	Logger Logger
}

// Bridge runs the three loops that make up the process: the authorization
// callback listener, the keepalive scheduler, and the module poller.
type Bridge struct {
	listener  *listener
	keepalive *keepaliveLoop
	poller    *poller
	sync      *synchronizer
	log       Logger
}

// New validates the options and assembles the bridge. Call Run to start
// the loops and Stop after Run returns to retire the published device.
func New(opts Options) (*Bridge, error) {
	if opts.Session == nil {
		return nil, ErrNoSession
	}
	if opts.Publisher == nil {
		return nil, ErrNoPublisher
	}
	if !homie.ValidID(opts.Domain) || !homie.ValidID(opts.DeviceID) {
		return nil, ErrInvalidIdentity
	}

	log := opts.Logger
	if log == nil {
		log = nopLog{}
	}

	sync := newSynchronizer(opts.Publisher, opts.Domain, opts.DeviceID, opts.DeviceName, log)

	return &Bridge{
		listener:  newListener(opts.Session, opts.ListenAddr, log),
		keepalive: newKeepaliveLoop(opts.Session, opts.KeepaliveInterval, log),
		poller:    newPoller(opts.Session, sync, opts.PollInterval, log),
		sync:      sync,
		log:       log,
	}, nil
}

// Run starts the loops and blocks until ctx is cancelled or one of them
// fails. A loop error is fatal to the whole bridge: the remaining loops
// are cancelled and the error returned.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.poller.session.Authenticated() {
		b.log.Info("authorization required, visit the authorization URL",
			"authorization_url", b.poller.session.AuthorizationURL())
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.listener.Run(ctx) })
	g.Go(func() error { return b.keepalive.Run(ctx) })
	g.Go(func() error { return b.poller.Run(ctx) })

	return g.Wait()
}

// Stop announces the published device as cleanly disconnected. Call after
// Run returns, while the MQTT connection is still up.
func (b *Bridge) Stop() error {
	return b.sync.Stop()
}

// nopLog discards everything; used when no logger is supplied.
type nopLog struct{}

func (nopLog) Debug(string, ...any) {}
func (nopLog) Info(string, ...any)  {}
func (nopLog) Warn(string, ...any)  {}
func (nopLog) Error(string, ...any) {}
