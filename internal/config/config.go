// Package config loads the oapmon configuration file. Configuration is
// read once at startup and never re-read mid-run.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"oapmon/internal/rules"
)

// Config errors are fatal: a run aborts before any fetch when the
// configuration cannot be loaded or validated.
var (
	ErrNoRecipients       = errors.New("notify: at least one recipient is required")
	ErrNoSender           = errors.New("notify: sender address is required")
	ErrNoSMTPHost         = errors.New("notify: smtp_host is required")
	ErrInstanceNotSet     = errors.New("instance is not configured")
	ErrNoRules            = errors.New("instance has no threshold rules")
	ErrNoPrometheusURL    = errors.New("prometheus_url is required")
	ErrNoQuery            = errors.New("query is required")
	ErrNoBatchRoot        = errors.New("batch_root is required")
	ErrDuplicateQueryName = errors.New("duplicate query name")
)

// Duration wraps time.Duration for YAML fields like "15s"
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a Go duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config holds runtime configuration for all monitoring instances
type Config struct {
	// LogLevel for zerolog (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`
	// Workers bounds fetch concurrency within one run
	Workers int `yaml:"workers"`
	// FetchTimeout applies per target so one unreachable endpoint
	// cannot stall the whole run
	FetchTimeout Duration `yaml:"fetch_timeout"`

	Notify    Notify    `yaml:"notify"`
	Instances Instances `yaml:"instances"`
}

// Notify configures alert delivery
type Notify struct {
	SMTPHost   string   `yaml:"smtp_host"`
	SMTPPort   int      `yaml:"smtp_port"`
	SMTPUser   string   `yaml:"smtp_user,omitempty"`
	SMTPPass   string   `yaml:"smtp_pass,omitempty"`
	Sender     string   `yaml:"sender"`
	Recipients []string `yaml:"recipients"`

	// SuppressAllClear skips delivery of reports with no violations.
	// Defaults to true: routine "no news" mail is noise.
	SuppressAllClear *bool `yaml:"suppress_all_clear,omitempty"`

	// KafkaBrokers enables the optional alert event stream when set
	KafkaBrokers []string `yaml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `yaml:"kafka_topic,omitempty"`
}

// Instances holds per-instance configuration; each is optional and a
// subcommand fails with ErrInstanceNotSet when its section is missing
type Instances struct {
	Sessions   *Sessions   `yaml:"sessions,omitempty"`
	URLs       *URLs       `yaml:"urls,omitempty"`
	Connectors *Connectors `yaml:"connectors,omitempty"`
}

// Sessions configures Oracle session-usage monitoring via Prometheus
type Sessions struct {
	PrometheusURL string       `yaml:"prometheus_url"`
	Query         string       `yaml:"query"`
	Metric        string       `yaml:"metric"`
	Labels        []string     `yaml:"labels"`
	Rules         []rules.Rule `yaml:"rules"`
}

// URLs configures batch URL health checking
type URLs struct {
	BatchRoot   string `yaml:"batch_root"`
	BatchPrefix string `yaml:"batch_prefix"`

	// Retries per URL before recording an unreachable entry; retry
	// delays grow between RetryMin and RetryMax
	Retries  int      `yaml:"retries"`
	RetryMin Duration `yaml:"retry_min,omitempty"`
	RetryMax Duration `yaml:"retry_max,omitempty"`

	// PostgresDSN enables the optional check-history store
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`

	Rules []rules.Rule `yaml:"rules"`
}

// NamedQuery is one PromQL query tracked for connector monitoring
type NamedQuery struct {
	Name   string `yaml:"name"`
	Query  string `yaml:"query"`
	Metric string `yaml:"metric"`
}

// Connectors configures Debezium connector lag/error tracking
type Connectors struct {
	PrometheusURL string       `yaml:"prometheus_url"`
	Queries       []NamedQuery `yaml:"queries"`
	Labels        []string     `yaml:"labels"`
	Rules         []rules.Rule `yaml:"rules"`
}

// Default returns a sensible default config for local dev
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		Workers:      4,
		FetchTimeout: Duration{15 * time.Second},
		Notify: Notify{
			SMTPPort:   25,
			KafkaTopic: "oapmon.alerts",
		},
	}
}

// Load reads and validates the configuration file at path, applying
// OAPMON_* environment overrides for credentials and endpoints
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables so credentials can stay out
// of the config file
func (c *Config) applyEnv() {
	if v := env("SMTP_HOST"); v != "" {
		c.Notify.SMTPHost = v
	}
	if v := env("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Notify.SMTPPort = n
		}
	}
	if v := env("SMTP_USER"); v != "" {
		c.Notify.SMTPUser = v
	}
	if v := env("SMTP_PASS"); v != "" {
		c.Notify.SMTPPass = v
	}
	if v := env("SENDER"); v != "" {
		c.Notify.Sender = v
	}
	if v := env("RECIPIENTS"); v != "" {
		c.Notify.Recipients = splitList(v)
	}
	if v := env("POSTGRES_DSN"); v != "" && c.Instances.URLs != nil {
		c.Instances.URLs.PostgresDSN = v
	}
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.FetchTimeout.Duration <= 0 {
		c.FetchTimeout.Duration = 15 * time.Second
	}
	if c.Notify.SMTPPort <= 0 {
		c.Notify.SMTPPort = 25
	}
	if c.Notify.KafkaTopic == "" {
		c.Notify.KafkaTopic = "oapmon.alerts"
	}
	if u := c.Instances.URLs; u != nil {
		if u.RetryMin.Duration <= 0 {
			u.RetryMin.Duration = 500 * time.Millisecond
		}
		if u.RetryMax.Duration <= 0 {
			u.RetryMax.Duration = 5 * time.Second
		}
	}
	if s := c.Instances.Sessions; s != nil && s.Metric == "" {
		s.Metric = "session_usage"
	}
}

// Validate checks delivery settings and every configured instance.
// Instance sections are validated even when the current subcommand does
// not use them, so a broken file fails fast everywhere.
func (c *Config) Validate() error {
	if c.Notify.SMTPHost == "" {
		return ErrNoSMTPHost
	}
	if c.Notify.Sender == "" {
		return ErrNoSender
	}
	if len(c.Notify.Recipients) == 0 {
		return ErrNoRecipients
	}

	if s := c.Instances.Sessions; s != nil {
		if s.PrometheusURL == "" {
			return fmt.Errorf("sessions: %w", ErrNoPrometheusURL)
		}
		if s.Query == "" {
			return fmt.Errorf("sessions: %w", ErrNoQuery)
		}
		if len(s.Rules) == 0 {
			return fmt.Errorf("sessions: %w", ErrNoRules)
		}
	}
	if u := c.Instances.URLs; u != nil {
		if u.BatchRoot == "" {
			return fmt.Errorf("urls: %w", ErrNoBatchRoot)
		}
		if len(u.Rules) == 0 {
			return fmt.Errorf("urls: %w", ErrNoRules)
		}
	}
	if d := c.Instances.Connectors; d != nil {
		if d.PrometheusURL == "" {
			return fmt.Errorf("connectors: %w", ErrNoPrometheusURL)
		}
		if len(d.Queries) == 0 {
			return fmt.Errorf("connectors: %w", ErrNoQuery)
		}
		seen := make(map[string]bool, len(d.Queries))
		for _, q := range d.Queries {
			if q.Name == "" || q.Query == "" || q.Metric == "" {
				return fmt.Errorf("connectors: query %q: %w", q.Name, ErrNoQuery)
			}
			if seen[q.Name] {
				return fmt.Errorf("connectors: %w: %q", ErrDuplicateQueryName, q.Name)
			}
			seen[q.Name] = true
		}
		if len(d.Rules) == 0 {
			return fmt.Errorf("connectors: %w", ErrNoRules)
		}
	}
	return nil
}

// SuppressAllClear resolves the pointer field with its default (true)
func (n *Notify) SuppressAllClearEnabled() bool {
	if n.SuppressAllClear == nil {
		return true
	}
	return *n.SuppressAllClear
}

func env(key string) string {
	return os.Getenv("OAPMON_" + key)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
