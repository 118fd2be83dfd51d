// Package mqtt provides MQTT client connectivity for the Netatmo bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge is a pure publisher: all exposed data is read-only sensor
// telemetry, so the client carries no subscription machinery. The Homie
// device model (internal/homie) sits on top of this client and owns the
// topic layout; this package only moves bytes.
//
//	Netatmo API → bridge engine → homie device → mqtt.Client → broker
//
// The LWT is supplied by the caller so the homie layer can point it at the
// device's $state topic with payload "lost", as the convention requires for
// ungraceful disconnects.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{
//	    Topic:   "homie/netatmo/$state",
//	    Payload: "lost",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.PublishRetained("homie/netatmo/$name", []byte("Netatmo"))
package mqtt
