// Package config loads, normalizes, and validates Reelsmith configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GENERATION_API_KEY and MINIO_ACCESS_KEY. The Config type centralizes every
// knob the daemon and CLI need, including the public base URL from which
// generation-callback addresses are built and the admission concurrency cap.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
