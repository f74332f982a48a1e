// Package config handles configuration loading and management for hitrun.
//
// It provides functionality for:
//   - Loading configuration from hitrun.yaml, .hitrun.yaml or hitrun.config.json
//   - Default configuration values
//   - Loading a .env file into the process environment
//   - HITRUN_* environment variable overrides
package config
