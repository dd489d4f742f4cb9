// Package config loads and validates clipforge configuration.
//
// Configuration is stored as TOML. Load resolves the file path, applies
// repository defaults for unset values, expands ~ in path fields, and
// validates the result. Components receive a *Config and read the fields
// they need; nothing re-reads the file after startup.
package config
