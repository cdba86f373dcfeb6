// Package config loads, normalizes, and validates spikecurate configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the SPIKECURATE_BASE_DIR
// environment fallback. Artifact directories that are left blank are derived
// from the base directory so a single setting relocates the whole workspace.
//
// Always obtain settings through this package so stages receive explicit
// storage roots instead of reaching for process-wide environment state.
package config
