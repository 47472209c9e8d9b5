package cli

import (
	"flag"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/config"
)

type Config struct {
	// Application flags
	Debug bool

	// MetricsAddr serves /metrics on a separate listener when set.
	// Empty keeps metrics on the main listener.
	MetricsAddr string

	// Configuration flags
	ConfigPath  string
	Environment string
}

// Parse reads the process flags. Every flag falls back to an environment
// variable, then to its default.
func Parse() *Config {
	c, _ := ParseArgs(flag.CommandLine, os.Args[1:])
	return c
}

// ParseArgs defines the flags on fs and parses args.
func ParseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	c := &Config{}
	fs.BoolVar(&c.Debug, "debug", getEnvBool("WEBAPP_DEBUG", false), "Enable debug level logging and gin debug mode")

	fs.StringVar(&c.MetricsAddr, "metrics-bind-address", getEnvString("METRICS_BIND_ADDRESS", ""),
		"The address the metrics endpoint binds to. Leave empty to serve /metrics on the main listener")

	fs.StringVar(&c.ConfigPath, "config-path", getEnvString("WEBAPP_CONFIG_PATH", config.DefaultConfigPath),
		"Path to the application configuration file")
	fs.StringVar(&c.Environment, "environment", getEnvString("WEBAPP_ENVIRONMENT", ""),
		"Hosting environment (Development or Production). Overrides the config file when set")

	if err := fs.Parse(args); err != nil {
		return c, err
	}
	return c, nil
}

// Apply copies flag values that override the loaded file configuration.
func (c *Config) Apply(cfg *config.Config) {
	if c.Environment != "" {
		cfg.Environment = config.Environment(c.Environment)
	}
}

func (c *Config) Print(log *zap.SugaredLogger) {
	log.Infow("CLI Configuration",
		"debug", c.Debug,
		"metrics_bind_address", c.MetricsAddr,
		"config_path", c.ConfigPath,
		"environment", c.Environment,
	)
}

// getEnvString returns the value of an environment variable, or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the value of an environment variable as a bool, or the provided default if not set.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}
