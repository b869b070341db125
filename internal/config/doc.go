// Package config loads, normalizes, and validates harp configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ALLOWED_ORIGINS. The Config type centralizes every knob the daemon and CLI
// need, allowing upload/output directories, detector commands, and the API
// bind address to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
