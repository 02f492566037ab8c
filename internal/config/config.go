package config

import (
	"fmt"
	"net"
	"net/mail"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Endpoint is a single (host, port) pair under surveillance.
type Endpoint struct {
	Host string
	Port int
}

// String returns the dialable "host:port" form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Host is one entry of the hosts mapping.
type Host struct {
	Name  string
	Ports []int
}

// HostList is the hosts mapping with document order preserved.
type HostList []Host

func (h *HostList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: hosts must be a mapping of hostname to port list", value.Line)
	}
	out := make(HostList, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var name string
		if err := value.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("line %d: decoding hostname: %w", value.Content[i].Line, err)
		}
		var ports []int
		if err := value.Content[i+1].Decode(&ports); err != nil {
			return fmt.Errorf("hosts[%q]: decoding ports: %w", name, err)
		}
		out = append(out, Host{Name: name, Ports: ports})
	}
	*h = out
	return nil
}

// MailConfig holds mail transport settings.
type MailConfig struct {
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Timeout  Duration `yaml:"timeout"`
}

// SecretsConfig locates the encrypted mail password and its key.
type SecretsConfig struct {
	PasswordFile string `yaml:"password_file"`
	KeyFile      string `yaml:"key_file"`
}

// StorageConfig holds failure-state storage settings.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// LogConfig holds optional log file rotation settings.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ServerConfig holds status API settings. An empty address disables the API.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// Config is the root application configuration. It is read-only after Load.
type Config struct {
	CheckInterval int
	MaxFailures   int
	LogLevel      string
	ProbeTimeout  Duration
	Concurrency   int
	Hosts         HostList
	Mail          MailConfig
	Secrets       SecretsConfig
	Storage       StorageConfig
	Log           LogConfig
	Server        ServerConfig
}

// Interval returns the pause between two check cycles.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

// Verbose reports whether debug logging is enabled. Anything other than
// "info" means verbose.
func (c *Config) Verbose() bool {
	return c.LogLevel != "info"
}

// Endpoints returns every configured endpoint, hosts in document order and
// ports in list order.
func (c *Config) Endpoints() []Endpoint {
	var eps []Endpoint
	for _, h := range c.Hosts {
		for _, p := range h.Ports {
			eps = append(eps, Endpoint{Host: h.Name, Port: p})
		}
	}
	return eps
}

// Hostnames returns the configured hostnames in document order.
func (c *Config) Hostnames() []string {
	names := make([]string, 0, len(c.Hosts))
	for _, h := range c.Hosts {
		names = append(names, h.Name)
	}
	return names
}

// Threshold returns the failure count at which a down alert fires.
func (c *Config) Threshold() int {
	return c.MaxFailures
}

var validDrivers = map[string]bool{
	"sqlite":   true,
	"postgres": true,
}

// Load reads, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	// Durations stay strings here so a bad value is reported with its key.
	type rawMail struct {
		From     string   `yaml:"from"`
		To       []string `yaml:"to"`
		Server   string   `yaml:"server"`
		Port     int      `yaml:"port"`
		Username string   `yaml:"username"`
		Timeout  string   `yaml:"timeout"`
	}
	type rawConfig struct {
		CheckInterval int           `yaml:"check_interval"`
		MaxFailures   int           `yaml:"max_failures"`
		LogLevel      string        `yaml:"log_level"`
		ProbeTimeout  string        `yaml:"probe_timeout"`
		Concurrency   int           `yaml:"concurrency"`
		Hosts         HostList      `yaml:"hosts"`
		Mail          rawMail       `yaml:"mail"`
		Secrets       SecretsConfig `yaml:"secrets"`
		Storage       StorageConfig `yaml:"storage"`
		Log           LogConfig     `yaml:"log"`
		Server        ServerConfig  `yaml:"server"`
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply defaults.
	if raw.Concurrency == 0 {
		raw.Concurrency = 1
	}
	if raw.Mail.Port == 0 {
		raw.Mail.Port = 587
	}
	if raw.Mail.Username == "" {
		raw.Mail.Username = raw.Mail.From
	}
	if raw.Secrets.PasswordFile == "" {
		raw.Secrets.PasswordFile = "password.bin"
	}
	if raw.Secrets.KeyFile == "" {
		raw.Secrets.KeyFile = "key.bin"
	}
	if raw.Storage.Driver == "" {
		raw.Storage.Driver = "sqlite"
	}
	if raw.Storage.Path == "" {
		raw.Storage.Path = "portwatch.db"
	}
	if raw.Log.MaxSizeMB == 0 {
		raw.Log.MaxSizeMB = 10
	}
	if raw.Log.MaxBackups == 0 {
		raw.Log.MaxBackups = 5
	}
	if raw.Log.MaxAgeDays == 0 {
		raw.Log.MaxAgeDays = 14
	}

	if raw.CheckInterval <= 0 {
		return nil, fmt.Errorf("check_interval must be a positive number of seconds")
	}
	if raw.MaxFailures < 1 {
		return nil, fmt.Errorf("max_failures must be at least 1")
	}
	if raw.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1")
	}
	if len(raw.Hosts) == 0 {
		return nil, fmt.Errorf("at least one host must be configured")
	}
	if !validDrivers[raw.Storage.Driver] {
		return nil, fmt.Errorf("storage: invalid driver %q (must be sqlite or postgres)", raw.Storage.Driver)
	}
	if raw.Storage.Driver == "postgres" && raw.Storage.DSN == "" {
		return nil, fmt.Errorf("storage: dsn is required for the postgres driver")
	}

	cfg := &Config{
		CheckInterval: raw.CheckInterval,
		MaxFailures:   raw.MaxFailures,
		LogLevel:      raw.LogLevel,
		Concurrency:   raw.Concurrency,
		Secrets:       raw.Secrets,
		Storage:       raw.Storage,
		Log:           raw.Log,
		Server:        raw.Server,
	}

	seen := make(map[Endpoint]bool)
	hosts := make(map[string]bool, len(raw.Hosts))
	for i, h := range raw.Hosts {
		if h.Name == "" {
			return nil, fmt.Errorf("hosts[%d]: hostname is required", i)
		}
		if hosts[h.Name] {
			return nil, fmt.Errorf("duplicate host %q", h.Name)
		}
		hosts[h.Name] = true
		if len(h.Ports) == 0 {
			return nil, fmt.Errorf("hosts[%q]: at least one port is required", h.Name)
		}
		for _, p := range h.Ports {
			if p < 1 || p > 65535 {
				return nil, fmt.Errorf("hosts[%q]: port %d out of range", h.Name, p)
			}
			ep := Endpoint{Host: h.Name, Port: p}
			if seen[ep] {
				return nil, fmt.Errorf("hosts[%q]: duplicate port %d", h.Name, p)
			}
			seen[ep] = true
		}
		cfg.Hosts = append(cfg.Hosts, h)
	}

	// Parse probe timeout with default.
	if raw.ProbeTimeout == "" {
		cfg.ProbeTimeout = Duration{time.Second}
	} else {
		d, err := time.ParseDuration(raw.ProbeTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid probe_timeout %q: %w", raw.ProbeTimeout, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("probe_timeout must be positive, got %s", d)
		}
		cfg.ProbeTimeout = Duration{d}
	}

	m, err := parseMail(raw.Mail.From, raw.Mail.To, raw.Mail.Server, raw.Mail.Port)
	if err != nil {
		return nil, err
	}
	m.Username = raw.Mail.Username
	if raw.Mail.Timeout == "" {
		m.Timeout = Duration{30 * time.Second}
	} else {
		d, err := time.ParseDuration(raw.Mail.Timeout)
		if err != nil {
			return nil, fmt.Errorf("mail: invalid timeout %q: %w", raw.Mail.Timeout, err)
		}
		m.Timeout = Duration{d}
	}
	cfg.Mail = m

	return cfg, nil
}

func parseMail(from string, to []string, server string, port int) (MailConfig, error) {
	if from == "" {
		return MailConfig{}, fmt.Errorf("mail: from is required")
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return MailConfig{}, fmt.Errorf("mail: invalid from address %q: %w", from, err)
	}
	if len(to) == 0 {
		return MailConfig{}, fmt.Errorf("mail: at least one recipient is required in to")
	}
	for i, addr := range to {
		if _, err := mail.ParseAddress(addr); err != nil {
			return MailConfig{}, fmt.Errorf("mail: to[%d]: invalid address %q: %w", i, addr, err)
		}
	}
	if server == "" {
		return MailConfig{}, fmt.Errorf("mail: server is required")
	}
	if port < 1 || port > 65535 {
		return MailConfig{}, fmt.Errorf("mail: port %d out of range", port)
	}
	return MailConfig{From: from, To: to, Server: server, Port: port}, nil
}
