// Package config handles loading and validating orchestra configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with ORCHESTRA_* environment variables
//   - Validation of every field, reported together
//   - Default value handling
//
// External services (database, MQTT, InfluxDB) are disabled by default so a
// bare checkout runs pipelines against simulated devices with no setup.
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The API binds to 127.0.0.1 unless api.host says otherwise
//
// Usage:
//
//	cfg, err := config.Load(config.ResolvePath(flagPath))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
