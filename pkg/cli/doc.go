// Package cli defines the process flags of the webapp binary: debug logging,
// config file location, environment override, and an optional separate
// metrics listener. Each flag falls back to an environment variable.
package cli
