// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Durations are written in Go notation (5s, 2m, 1h30m).
package config
