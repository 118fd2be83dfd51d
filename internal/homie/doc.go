// Package homie implements the publishing side of the Homie 4.0 MQTT
// convention: a device/node/property tree whose description and values are
// published as retained messages under a fixed topic layout.
//
// # Topic layout
//
//	<domain>/<device-id>/$homie                    → "4.0.0"
//	<domain>/<device-id>/$name                     → device name
//	<domain>/<device-id>/$state                    → init|ready|disconnected|lost
//	<domain>/<device-id>/$nodes                    → comma-separated node IDs
//	<domain>/<device-id>/<node>/$name              → node name
//	<domain>/<device-id>/<node>/$properties        → comma-separated property IDs
//	<domain>/<device-id>/<node>/<prop>/$datatype   → string|integer|boolean|float
//	<domain>/<device-id>/<node>/<prop>             → current value
//
// Every message is retained so subscribers joining later immediately see the
// full device description and last known values.
//
// # Lifecycle
//
// A Device is built from a complete description, then registered with one
// atomic Start (from the subscriber's view: $state goes init → ready once
// every attribute is out). The bridge rebuilds the tree on topology changes
// by stopping the old device entirely before starting the new one, so no
// two registrations ever overlap. All properties here are read-only sensor
// telemetry ($settable is always false); the convention's settable side is
// deliberately not implemented.
package homie
