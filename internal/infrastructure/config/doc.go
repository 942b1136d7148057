// Package config handles loading and validating VendLink Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (VENDLINK_* via caarlos0/env)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (broker password, lookup secret) should be set via
//     environment variables rather than the config file
//   - The config file should have restricted permissions (0600)
//
// The broker host, username and password are hard requirements: the bridge
// refuses to start without them, since it cannot serve device state with no
// transport behind it.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
