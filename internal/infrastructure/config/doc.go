// Package config handles loading and validating HomePilot Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with HOMEPILOT_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The bridge password and broker credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Every outer surface (database, mqtt, api, influxdb) has an enabled flag;
// only the bridge section is always required.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bridge.Host)
package config
