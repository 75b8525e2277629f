// Package config loads, normalizes, and validates bgmrules configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for the
// LLM API key. The Config type centralizes every knob the CLI and pipeline
// stages need. Task files describing which listing table to process are read
// by LoadTask.
package config
