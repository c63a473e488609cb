// Package config loads, normalizes, and validates studyforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and OPENROUTER_API_KEY. The Config type centralizes every knob
// the daemon and CLI need: the generator routing table, vector and blob store
// connections, and the deletion recovery window.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
