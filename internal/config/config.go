// Package config loads and validates the radiogate configuration file.
// Configuration is YAML; ${VAR} references are expanded from the
// environment so credentials can live in a .env file instead of the
// config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/radiogate/radiogate/internal/core/mailgw"
)

// Config is the root configuration
type Config struct {
	// Callsign is the local operator identity
	Callsign string `yaml:"callsign"`

	// DataDir roots the outbox, inbox and received-files directories
	DataDir string `yaml:"data_dir"`

	// Pipelined selects the transport's pipelined transfer strategy
	Pipelined bool `yaml:"pipelined"`

	Forwarding ForwardingConfig `yaml:"forwarding"`
	Tunnel     TunnelConfig     `yaml:"tunnel"`
	Mail       MailConfig       `yaml:"mail"`
}

// ForwardingConfig tunes the store-and-forward router
type ForwardingConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

// TunnelConfig tunes the socket tunnel relay
type TunnelConfig struct {
	// ReadTimeoutSeconds bounds each tunnel socket read
	ReadTimeoutSeconds int `yaml:"read_timeout_seconds"`

	// Ports maps an inbound tunnel port to the local target host:port
	Ports map[int]string `yaml:"ports"`
}

// MailConfig configures the email gateway
type MailConfig struct {
	GatewayEnabled bool          `yaml:"gateway_enabled"`
	ReplyTo        string        `yaml:"reply_to"`
	SMTP           SMTPConfig    `yaml:"smtp"`
	Accounts       []MailAccount `yaml:"accounts"`
	Rules          []RuleConfig  `yaml:"rules"`
}

// SMTPConfig configures outbound mail
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// MailAccount configures one polled inbound mailbox
type MailAccount struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	TLS             bool   `yaml:"tls"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	Action          string `yaml:"action"`
}

// RuleConfig is one ordered access rule
type RuleConfig struct {
	Station    string `yaml:"station"`
	Permission string `yaml:"permission"`
	Address    string `yaml:"address"`
}

// Duration wraps time.Duration for YAML strings like "2m"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// AsDuration returns the wrapped time.Duration
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// Load reads, expands and validates the configuration at path. A .env
// file next to the config supplies environment variables for ${VAR}
// expansion; a missing .env is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Forwarding.Interval == 0 {
		c.Forwarding.Interval = Duration(2 * time.Minute)
	}
	if c.Tunnel.ReadTimeoutSeconds <= 0 {
		c.Tunnel.ReadTimeoutSeconds = 2
	}
	for i := range c.Mail.Accounts {
		if c.Mail.Accounts[i].IntervalMinutes <= 0 {
			c.Mail.Accounts[i].IntervalMinutes = 10
		}
		if c.Mail.Accounts[i].Action == "" {
			c.Mail.Accounts[i].Action = string(mailgw.ActionForward)
		}
	}
}

// Validate checks the configuration for the errors that would
// otherwise surface mid-operation
func (c *Config) Validate() error {
	if c.Callsign == "" {
		return fmt.Errorf("config missing callsign")
	}

	for port, target := range c.Tunnel.Ports {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("tunnel port %d out of range", port)
		}
		if target == "" {
			return fmt.Errorf("tunnel port %d has no target", port)
		}
	}

	for i, acct := range c.Mail.Accounts {
		if acct.Host == "" || acct.User == "" {
			return fmt.Errorf("mail account %d missing host or user", i)
		}
		if _, err := mailgw.ParseAction(acct.Action); err != nil {
			return fmt.Errorf("mail account %d: %w", i, err)
		}
	}

	if _, err := c.CompiledRules(); err != nil {
		return fmt.Errorf("access rules invalid: %w", err)
	}

	if c.Mail.GatewayEnabled && c.Mail.SMTP.Host == "" {
		return fmt.Errorf("mail gateway enabled but smtp host unset")
	}

	return nil
}

// CompiledRules converts and compiles the configured access rules,
// preserving their order
func (c *Config) CompiledRules() ([]mailgw.Rule, error) {
	rules := make([]mailgw.Rule, len(c.Mail.Rules))
	for i, r := range c.Mail.Rules {
		rules[i] = mailgw.Rule{
			Station:        r.Station,
			Permission:     mailgw.Permission(r.Permission),
			AddressPattern: r.Address,
		}
	}
	return mailgw.CompileRules(rules)
}

// GatewayAccounts converts the configured mailboxes into poller
// accounts
func (c *Config) GatewayAccounts() []mailgw.Account {
	accounts := make([]mailgw.Account, len(c.Mail.Accounts))
	for i, a := range c.Mail.Accounts {
		action, _ := mailgw.ParseAction(a.Action)
		accounts[i] = mailgw.Account{
			Host:     a.Host,
			Port:     a.Port,
			TLS:      a.TLS,
			User:     a.User,
			Password: a.Password,
			Interval: time.Duration(a.IntervalMinutes) * time.Minute,
			Action:   action,
		}
	}
	return accounts
}

// OutboxDir returns the pending outbound forms directory
func (c *Config) OutboxDir() string {
	return filepath.Join(c.DataDir, "outbox")
}

// InboxDir returns the received forms directory
func (c *Config) InboxDir() string {
	return filepath.Join(c.DataDir, "inbox")
}

// FilesDir returns the received files directory
func (c *Config) FilesDir() string {
	return filepath.Join(c.DataDir, "files")
}
