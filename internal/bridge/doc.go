// Package bridge connects the vendor weather station session to the MQTT
// Homie device tree. It owns the three background loops of the process:
//
//   - The authorization callback listener, a small HTTP surface the operator's
//     browser is redirected to after granting access.
//   - The keepalive scheduler, which refreshes the access token before it
//     expires so the bridge stays authenticated while idle.
//   - The module poller, which fetches station data on a fixed cadence,
//     diffs the module topology, and drives the synchronizer.
//
// The synchronizer translates the flat module list into a Homie device:
// one node per module, slug-named, rebuilt wholesale when the module set
// changes and value-patched otherwise. The published tree is owned by the
// poller goroutine alone; no other goroutine touches it.
//
// All loops run until their context is cancelled. Vendor-side failures are
// transient: a cycle that cannot complete is logged and skipped, leaving
// the published tree exactly as it was.
package bridge
