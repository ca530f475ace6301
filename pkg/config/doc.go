// Package config loads daemon configuration from CONSTEL_* environment
// variables with sensible defaults and validates it at startup.
package config
