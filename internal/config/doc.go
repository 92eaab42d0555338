// Package config loads, normalizes, and validates domin configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DOMIN_HUB_TOKEN. Load runs the full normalize/validate pass and resolves
// the derived timing values (settle ticks, macro-steps per episode, record
// stride) exactly once, so every component built afterwards sees the same
// frozen numbers.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
