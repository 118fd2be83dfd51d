// Package config loads and validates the bridge configuration.
//
// Configuration comes from three layers, later layers winning:
//
//  1. Hardcoded defaults (defaultConfig)
//  2. A YAML file (configs/config.yaml by default)
//  3. NETATMO_BRIDGE_* environment variables
//
// Secrets (the vendor client secret, MQTT credentials) should be supplied
// through the environment rather than committed to the YAML file.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.CallbackURL())
package config
