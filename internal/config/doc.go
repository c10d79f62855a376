// Package config loads and validates modvault's TOML configuration.
//
// Configuration resolution order: an explicit --config path, then
// ~/.config/modvault/config.toml, then modvault.toml in the working directory.
// Missing files fall back to built-in defaults so the tool works with zero
// setup.
package config
