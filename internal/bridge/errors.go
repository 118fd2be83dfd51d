package bridge

import "errors"

// Configuration errors returned by New.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoSession indicates the bridge was constructed without a vendor
	// session.
	ErrNoSession = errors.New("bridge: session is required")

	// ErrNoPublisher indicates the bridge was constructed without an MQTT
	// publisher.
	ErrNoPublisher = errors.New("bridge: publisher is required")

	// ErrInvalidIdentity indicates the Homie domain or device ID is not a
	// valid topic identifier.
	ErrInvalidIdentity = errors.New("bridge: invalid homie device identity")
)
