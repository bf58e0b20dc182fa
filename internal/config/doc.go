// Package config loads, normalizes, and validates the daemon's TOML
// configuration. Paths are tilde-expanded and made absolute; a .env file
// and STRATA_* environment variables overlay broker and bind settings.
package config
