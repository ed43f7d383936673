package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/girste/blueteam/internal/errors"
	"gopkg.in/yaml.v3"
)

// Task names understood by the scan pipeline.
const (
	TaskPackages    = "packages"
	TaskDebsums     = "debsums"
	TaskSudo        = "sudo"
	TaskUsers       = "users"
	TaskProcesses   = "processes"
	TaskConnections = "connections"
	TaskCron        = "cron"
	TaskFiles       = "files"
)

// Elevation modes for remote hosts.
const (
	ElevationAuto         = "auto"
	ElevationNone         = "none"
	ElevationPasswordless = "passwordless"
	ElevationPassword     = "password"
)

// Package managers.
const (
	ManagerAuto = "auto"
	ManagerDpkg = "dpkg"
	ManagerRPM  = "rpm"
)

type Config struct {
	Tasks            map[string]bool `yaml:"tasks"`
	Workers          int             `yaml:"workers"`
	KernelThreads    bool            `yaml:"kernelThreads"`
	PackageManager   string          `yaml:"packageManager"`
	OwnershipCommand string          `yaml:"ownershipCommand"`
	VerifyCommand    string          `yaml:"verifyCommand"`
	Cache            CacheConfig     `yaml:"cache"`
	SSH              SSHConfig       `yaml:"ssh"`
	Elevation        string          `yaml:"elevation"`
	Metrics          MetricsConfig   `yaml:"metrics"`
	Notifications    NotifyConfig    `yaml:"notifications"`
}

// CacheConfig controls the persisted hash-verification cache
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // empty: util.GetCacheDir()
}

// SSHConfig holds connection defaults applied to every remote target
type SSHConfig struct {
	User                  string `yaml:"user"`
	Port                  int    `yaml:"port"`
	KeyFile               string `yaml:"keyFile"`
	Passphrase            bool   `yaml:"passphrase"` // prompt for the key passphrase
	TimeoutSeconds        int    `yaml:"timeoutSeconds"`
	StrictHostKeyChecking bool   `yaml:"strictHostKeyChecking"`
	KnownHosts            string `yaml:"knownHosts"`
	Agent                 bool   `yaml:"agent"`
	RemoteWorkers         int    `yaml:"remoteWorkers"`     // per-host process detail fetches
	RemoteConnections     bool   `yaml:"remoteConnections"` // enumerate sockets with ss
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// NotifyConfig sends a per-host alert to webhooks after a scan.
type NotifyConfig struct {
	Enabled        bool          `yaml:"enabled"`
	OnlyOnIssues   bool          `yaml:"onlyOnIssues"`
	MinSeverity    string        `yaml:"minSeverity"` // critical, high, medium, low
	MaskHosts      bool          `yaml:"maskHosts"`
	Discord        DiscordConfig `yaml:"discord"`
	Slack          SlackConfig   `yaml:"slack"`
	GenericWebhook WebhookConfig `yaml:"webhook"`
}

type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhookUrl"`
	Username   string `yaml:"username"`
	AvatarURL  string `yaml:"avatarUrl"`
}

type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhookUrl"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
}

type WebhookConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"` // POST, PUT
	Headers map[string]string `yaml:"headers,omitempty"`
}

func Default() *Config {
	return &Config{
		Tasks: map[string]bool{
			TaskPackages: true, TaskDebsums: true, TaskSudo: true, TaskUsers: true,
			TaskProcesses: true, TaskConnections: true, TaskCron: true, TaskFiles: false,
		},
		Workers:        0,
		KernelThreads:  true,
		PackageManager: ManagerAuto,
		Cache:          CacheConfig{Enabled: true},
		SSH: SSHConfig{
			User:           "root",
			Port:           22,
			TimeoutSeconds: 10,
			KnownHosts:     "~/.ssh/known_hosts",
			Agent:          true,
			RemoteWorkers:  8,
		},
		Elevation: ElevationAuto,
		Notifications: NotifyConfig{
			OnlyOnIssues: true,
			MinSeverity:  "high",
		},
	}
}

// SearchPaths returns the config file locations in priority order.
func SearchPaths() []string {
	home, _ := os.UserHomeDir()
	searchPaths := []string{}

	// 1. Environment variable (highest priority - for Docker)
	if configDir := os.Getenv("BLUETEAM_CONFIG_DIR"); configDir != "" {
		searchPaths = append(searchPaths,
			filepath.Join(configDir, ".blueteam.yaml"),
			filepath.Join(configDir, ".blueteam.yml"),
		)
	}

	// 2. Current directory
	searchPaths = append(searchPaths, ".blueteam.yaml", ".blueteam.yml")

	// 3. Home directory
	if home != "" {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".blueteam.yaml"),
			filepath.Join(home, ".blueteam.yml"),
		)
	}

	// 4. System-wide config
	return append(searchPaths, "/etc/blueteam/config.yaml")
}

func Load() (*Config, error) {
	for _, path := range SearchPaths() {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return Parse(data, path)
	}
	return Default(), nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte, source string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "invalid config at %s: %v", source, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsTaskEnabled(name string) bool {
	enabled, ok := c.Tasks[name]
	if !ok {
		return name != TaskFiles
	}
	return enabled
}

func (c *Config) SetTask(name string, enabled bool) {
	if c.Tasks == nil {
		c.Tasks = map[string]bool{}
	}
	c.Tasks[name] = enabled
}

func (c *Config) GetWorkers() int {
	if c.Workers <= 0 {
		return runtime.NumCPU() + 1
	}
	return c.Workers
}

// Validate checks config for errors
func (c *Config) Validate() error {
	if c.SSH.Passphrase && c.SSH.KeyFile == "" {
		return errors.Wrap(errors.ErrInvalidConfig, "passphrase requested without a key file")
	}

	switch c.Elevation {
	case ElevationAuto, ElevationNone, ElevationPasswordless, ElevationPassword:
	default:
		return errors.Wrap(errors.ErrInvalidConfig,
			"invalid elevation: %s (must be: auto, none, passwordless, password)", c.Elevation)
	}

	switch c.PackageManager {
	case ManagerAuto, ManagerDpkg, ManagerRPM:
	default:
		return errors.Wrap(errors.ErrInvalidConfig,
			"invalid packageManager: %s (must be: auto, dpkg, rpm)", c.PackageManager)
	}

	if c.Workers < 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "workers must not be negative, got: %d", c.Workers)
	}
	if c.SSH.RemoteWorkers < 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "ssh.remoteWorkers must not be negative, got: %d", c.SSH.RemoteWorkers)
	}
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		return errors.Wrap(errors.ErrInvalidConfig, "ssh.port must be between 1 and 65535, got: %d", c.SSH.Port)
	}
	switch c.Notifications.MinSeverity {
	case "critical", "high", "medium", "low", "":
	default:
		return errors.Wrap(errors.ErrInvalidConfig,
			"invalid notifications.minSeverity: %s (must be: critical, high, medium, low)", c.Notifications.MinSeverity)
	}

	if c.SSH.TimeoutSeconds < 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "ssh.timeoutSeconds must not be negative, got: %d", c.SSH.TimeoutSeconds)
	}

	return nil
}

// Marshal renders the config as YAML, for init-config.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
