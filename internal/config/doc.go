// Package config loads, normalizes, and validates the TOML configuration
// for the Hillview capture core. Defaults live in defaults.go and the
// annotated sample in sample_config.toml; Load applies file values over
// defaults, expands paths, and validates the result.
package config
