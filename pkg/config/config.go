package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// Environment selects the request pipeline: Development exposes the mail log
// inspection endpoints, Production adds HSTS.
type Environment string

const (
	EnvironmentDevelopment Environment = "Development"
	EnvironmentProduction  Environment = "Production"
)

// MailMode selects the EmailSender registered at startup.
type MailMode string

const (
	// MailModeMock records emails in the in-memory hour-bucketed log.
	MailModeMock MailMode = "mock"
	// MailModeSMTP delivers emails through the background SMTP queue.
	MailModeSMTP MailMode = "smtp"
)

const (
	DefaultConfigPath    = "./config.yaml"
	DefaultListenAddress = ":8080"
	DefaultDatabasePath  = "mylocaldb.db"
	// DefaultHSTSMaxAge matches the 30 day framework default.
	DefaultHSTSMaxAge = 30 * 24 * time.Hour
	// DefaultSamplingRate samples every trace. An explicit 0 disables sampling.
	DefaultSamplingRate = 1.0
)

type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"` // IPs/CIDRS to trust for X-Forwarded-For headers (e.g., ["10.0.0.0/8", "127.0.0.1"])
	// HSTSMaxAge is a Go duration string ("720h"). Empty means DefaultHSTSMaxAge.
	HSTSMaxAge    string `yaml:"hstsMaxAge"`
	HTTPSRedirect bool   `yaml:"httpsRedirect"`
	StaticDir     string `yaml:"staticDir"`
}

type Database struct {
	Path        string `yaml:"path"`
	SharedCache bool   `yaml:"sharedCache"`
}

type Identity struct {
	// RequireConfirmedAccount makes registration send a confirmation link
	// before the account may sign in.
	RequireConfirmedAccount bool   `yaml:"requireConfirmedAccount"`
	BrandingName            string `yaml:"brandingName"`
	// BaseURL is used to build absolute links in account emails.
	BaseURL string `yaml:"baseURL"`
}

type Mail struct {
	Mode               MailMode `yaml:"mode"`
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	User               string   `yaml:"user"`
	Password           string   `yaml:"password"`
	SenderAddress      string   `yaml:"senderAddress"`
	SenderName         string   `yaml:"senderName"`
	InsecureSkipVerify bool     `yaml:"insecureSkipVerify"`
	RetryCount         int      `yaml:"retryCount"`
	RetryBackoffMs     int      `yaml:"retryBackoffMs"`
	QueueSize          int      `yaml:"queueSize"`
}

type RateLimit struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// Audit controls the account event trail. Events always go to the log sink
// when enabled; Kafka is added when brokers are configured.
type Audit struct {
	Enabled   bool       `yaml:"enabled"`
	QueueSize int        `yaml:"queueSize"`
	Kafka     KafkaAudit `yaml:"kafka"`
}

type KafkaAudit struct {
	Brokers            []string `yaml:"brokers"`
	Topic              string   `yaml:"topic"`
	TLS                bool     `yaml:"tls"`
	CAFile             string   `yaml:"caFile"`
	InsecureSkipVerify bool     `yaml:"insecureSkipVerify"`
	SASLMechanism      string   `yaml:"saslMechanism"` // PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512
	SASLUser           string   `yaml:"saslUser"`
	SASLPassword       string   `yaml:"saslPassword"`
	Compression        string   `yaml:"compression"`
}

type Telemetry struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
	// Endpoint is the OTLP/HTTP collector URL, e.g. "http://otel-collector:4318".
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

type Config struct {
	Environment Environment `yaml:"environment"`
	Server      Server      `yaml:"server"`
	Database    Database    `yaml:"database"`
	Identity    Identity    `yaml:"identity"`
	Mail        Mail        `yaml:"mail"`
	RateLimit   RateLimit   `yaml:"rateLimit"`
	Audit       Audit       `yaml:"audit"`
	Telemetry   Telemetry   `yaml:"telemetry"`
}

// envOverlay lists the settings that may be supplied through the environment
// instead of the config file. Empty values leave the file value untouched.
type envOverlay struct {
	Environment  string   `env:"WEBAPP_ENVIRONMENT"`
	ListenAddr   string   `env:"WEBAPP_LISTEN_ADDRESS"`
	DatabasePath string   `env:"WEBAPP_DATABASE_PATH"`
	MailMode     string   `env:"WEBAPP_MAIL_MODE"`
	SMTPUser     string   `env:"WEBAPP_SMTP_USER"`
	SMTPPassword string   `env:"WEBAPP_SMTP_PASSWORD"`
	KafkaBrokers []string `env:"WEBAPP_AUDIT_KAFKA_BROKERS" envSeparator:","`
	KafkaPass    string   `env:"WEBAPP_AUDIT_KAFKA_PASSWORD"`
	OTelEndpoint string   `env:"WEBAPP_OTEL_ENDPOINT"`
}

// Load loads the configuration from a file path.
// If configPath is empty, defaults to "./config.yaml". A missing file at the
// default location is not an error: the built-in defaults are used instead.
func Load(configPath ...string) (Config, error) {
	path := DefaultConfigPath
	explicit := false
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
		explicit = true
	}

	// Settings whose zero value is meaningful are seeded before unmarshaling
	// so that keys absent from the file keep their defaults.
	config := Config{
		Database:  Database{SharedCache: true},
		Identity:  Identity{RequireConfirmedAccount: true},
		Telemetry: Telemetry{SamplingRate: DefaultSamplingRate},
	}

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &config); err != nil {
			return config, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return config, fmt.Errorf("trying to open config file %s: %w", path, err)
	}

	if err := config.ApplyEnv(); err != nil {
		return config, err
	}
	config.Defaults()
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// ApplyEnv overlays environment variables onto the loaded file values.
func (c *Config) ApplyEnv() error {
	var overlay envOverlay
	if err := env.Parse(&overlay); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if overlay.Environment != "" {
		c.Environment = Environment(overlay.Environment)
	}
	if overlay.ListenAddr != "" {
		c.Server.ListenAddress = overlay.ListenAddr
	}
	if overlay.DatabasePath != "" {
		c.Database.Path = overlay.DatabasePath
	}
	if overlay.MailMode != "" {
		c.Mail.Mode = MailMode(overlay.MailMode)
	}
	if overlay.SMTPUser != "" {
		c.Mail.User = overlay.SMTPUser
	}
	if overlay.SMTPPassword != "" {
		c.Mail.Password = overlay.SMTPPassword
	}
	if len(overlay.KafkaBrokers) > 0 {
		c.Audit.Kafka.Brokers = overlay.KafkaBrokers
	}
	if overlay.KafkaPass != "" {
		c.Audit.Kafka.SASLPassword = overlay.KafkaPass
	}
	if overlay.OTelEndpoint != "" {
		c.Telemetry.Endpoint = overlay.OTelEndpoint
	}
	return nil
}

// Defaults fills unset fields with their defaults.
func (c *Config) Defaults() {
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = DefaultListenAddress
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "./wwwroot"
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Identity.BrandingName == "" {
		c.Identity.BrandingName = "WebApp"
	}
	if c.Identity.BaseURL == "" {
		c.Identity.BaseURL = "http://localhost" + c.Server.ListenAddress
	}
	if c.Mail.Mode == "" {
		c.Mail.Mode = MailModeMock
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.RateLimit.Rate == 0 {
		c.RateLimit.Rate = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 50
	}
	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = 1000
	}
	if c.Audit.Kafka.Topic == "" {
		c.Audit.Kafka.Topic = "webapp-audit"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "webapp"
	}
}

// Validate reports configuration that cannot be started with.
func (c Config) Validate() error {
	var errs []error
	switch c.Environment {
	case EnvironmentDevelopment, EnvironmentProduction:
	default:
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	switch c.Mail.Mode {
	case MailModeMock:
	case MailModeSMTP:
		if strings.TrimSpace(c.Mail.Host) == "" {
			errs = append(errs, errors.New("mail.host is required in smtp mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mail mode %q", c.Mail.Mode))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tlsCertFile and server.tlsKeyFile must be set together"))
	}
	if _, err := c.HSTSMaxAge(); err != nil {
		errs = append(errs, err)
	}
	switch c.Audit.Kafka.SASLMechanism {
	case "", "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
	default:
		errs = append(errs, fmt.Errorf("unsupported audit.kafka.saslMechanism %q", c.Audit.Kafka.SASLMechanism))
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.samplingRate must be within [0, 1], got %v", c.Telemetry.SamplingRate))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the development pipeline is active.
func (c Config) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

// HSTSMaxAge parses server.hstsMaxAge.
func (c Config) HSTSMaxAge() (time.Duration, error) {
	if c.Server.HSTSMaxAge == "" {
		return DefaultHSTSMaxAge, nil
	}
	d, err := time.ParseDuration(c.Server.HSTSMaxAge)
	if err != nil {
		return 0, fmt.Errorf("invalid server.hstsMaxAge %q: %w", c.Server.HSTSMaxAge, err)
	}
	return d, nil
}
