// Package config handles server-side configuration loading from a YAML file,
// with secrets and deployment-specific paths overlaid from environment variables.
package config
