package homie

import "errors"

// Domain-specific errors for the Homie device model.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidID is returned when a device, node or property ID does not
	// conform to the convention (lowercase alphanumerics and hyphens).
	ErrInvalidID = errors.New("homie: invalid topic identifier")

	// ErrDuplicateID is returned when a device description contains two
	// nodes, or two properties within one node, with the same ID.
	ErrDuplicateID = errors.New("homie: duplicate identifier")

	// ErrUnknownNode is returned when looking up a node ID that does not
	// exist on the device.
	ErrUnknownNode = errors.New("homie: unknown node")

	// ErrUnknownProperty is returned when looking up a property ID that does
	// not exist on a node.
	ErrUnknownProperty = errors.New("homie: unknown property")
)
