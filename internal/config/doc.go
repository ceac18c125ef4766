// Package config loads, normalizes, and validates the TOML configuration
// shared by the loftd daemon and the loft CLI.
package config
