// Package config handles loading and validating Fox Bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with FOXBRIDGE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Secrets (MQTT password, InfluxDB token, JWT secret) should be supplied
// through the environment or a .env file rather than the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
