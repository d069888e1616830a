package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. Values come from, in
// increasing precedence: defaults, the YAML file named by CONFIG_FILE, and
// the environment (a .env file in the working directory included).
type Config struct {
	Port         string `yaml:"port"`
	DatabaseURL  string `yaml:"database_url"`
	RedisURL     string `yaml:"redis_url"`
	StoreBackend string `yaml:"store_backend"`
	PublicURL    string `yaml:"public_url"`
	AssetBaseURL string `yaml:"asset_base_url"`
	MetricsAddr  string `yaml:"metrics_addr"`
	LogLevel     string `yaml:"log_level"`

	Worker WorkerConfig `yaml:"worker"`
	Retry  RetryConfig  `yaml:"retry"`
	Mail   MailConfig   `yaml:"mail"`
}

type WorkerConfig struct {
	NumWorkers      int           `yaml:"num_workers"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ClaimBatch      int           `yaml:"claim_batch"`
	JobLease        time.Duration `yaml:"job_lease"`
	DomainRateLimit int           `yaml:"domain_rate_limit"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Backoff     string        `yaml:"backoff"`
}

type MailConfig struct {
	// Transport is smtp, http or log.
	Transport    string `yaml:"transport"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPHello    string `yaml:"smtp_hello"`
	SMTPStartTLS bool   `yaml:"smtp_starttls"`
	DKIMDomain   string `yaml:"dkim_domain"`
	DKIMSelector string `yaml:"dkim_selector"`
	DKIMKeyFile  string `yaml:"dkim_key_file"`
	APIURL       string `yaml:"api_url"`
	APIKey       string `yaml:"api_key"`
}

func defaults() Config {
	return Config{
		Port:         "8080",
		StoreBackend: "postgres",
		PublicURL:    "http://localhost:8080",
		MetricsAddr:  ":9090",
		LogLevel:     "info",
		Worker: WorkerConfig{
			NumWorkers:   50,
			PollInterval: 100 * time.Millisecond,
			ClaimBatch:   10,
			JobLease:     5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			Backoff:     "exponential",
		},
		Mail: MailConfig{
			Transport: "log",
			SMTPPort:  587,
		},
	}
}

// Load reads configuration from .env, CONFIG_FILE and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Port = getEnv("PORT", c.Port)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.StoreBackend = getEnv("STORE_BACKEND", c.StoreBackend)
	c.PublicURL = getEnv("PUBLIC_URL", c.PublicURL)
	c.AssetBaseURL = getEnv("ASSET_BASE_URL", c.AssetBaseURL)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Worker.NumWorkers = getEnvInt("NUM_WORKERS", c.Worker.NumWorkers)
	c.Worker.PollInterval = getEnvDuration("POLL_INTERVAL", c.Worker.PollInterval)
	c.Worker.ClaimBatch = getEnvInt("CLAIM_BATCH", c.Worker.ClaimBatch)
	c.Worker.JobLease = getEnvDuration("JOB_LEASE", c.Worker.JobLease)
	c.Worker.DomainRateLimit = getEnvInt("DOMAIN_RATE_LIMIT", c.Worker.DomainRateLimit)

	c.Retry.MaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts)
	c.Retry.BaseDelay = getEnvDuration("RETRY_BASE_DELAY", c.Retry.BaseDelay)
	c.Retry.Backoff = getEnv("RETRY_BACKOFF", c.Retry.Backoff)

	c.Mail.Transport = getEnv("MAIL_TRANSPORT", c.Mail.Transport)
	c.Mail.SMTPHost = getEnv("SMTP_HOST", c.Mail.SMTPHost)
	c.Mail.SMTPPort = getEnvInt("SMTP_PORT", c.Mail.SMTPPort)
	c.Mail.SMTPUser = getEnv("SMTP_USER", c.Mail.SMTPUser)
	c.Mail.SMTPPassword = getEnv("SMTP_PASSWORD", c.Mail.SMTPPassword)
	c.Mail.SMTPHello = getEnv("SMTP_HELLO", c.Mail.SMTPHello)
	c.Mail.SMTPStartTLS = getEnvBool("SMTP_STARTTLS", c.Mail.SMTPStartTLS)
	c.Mail.DKIMDomain = getEnv("DKIM_DOMAIN", c.Mail.DKIMDomain)
	c.Mail.DKIMSelector = getEnv("DKIM_SELECTOR", c.Mail.DKIMSelector)
	c.Mail.DKIMKeyFile = getEnv("DKIM_KEY_FILE", c.Mail.DKIMKeyFile)
	c.Mail.APIURL = getEnv("MAIL_API_URL", c.Mail.APIURL)
	c.Mail.APIKey = getEnv("MAIL_API_KEY", c.Mail.APIKey)
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	switch c.Mail.Transport {
	case "smtp":
		if c.Mail.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for the smtp transport")
		}
	case "http":
		if c.Mail.APIURL == "" {
			return fmt.Errorf("MAIL_API_URL is required for the http transport")
		}
	case "log":
	default:
		return fmt.Errorf("unknown MAIL_TRANSPORT %q", c.Mail.Transport)
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
