// Package config loads and validates the driftline configuration file.
package config
