package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up under the home directory.
const FileName = "config.yaml"

// Config holds all agentsync daemon settings. Zero values are replaced by Default().
type Config struct {
	Inference InferenceConfig `yaml:"inference"`
	Presence  PresenceConfig  `yaml:"presence"`
	Messages  MessagesConfig  `yaml:"messages"`
	Notify    NotifyConfig    `yaml:"notify"`
	Collab    CollabConfig    `yaml:"collab"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`

	// RulesFile optionally replaces the built-in rule table (YAML list of rules).
	RulesFile string `yaml:"rules_file"`
}

// InferenceConfig selects the generative backend.
type InferenceConfig struct {
	Provider string `yaml:"provider"` // stub, openai, anthropic, gemini, exec
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`

	// exec provider: command reading the request on stdin and printing JSON.
	Command []string `yaml:"command"`
	// Sandbox, if set, runs the exec command under bubblewrap (Linux) with this directory writable.
	Sandbox string `yaml:"sandbox"`
}

// PresenceConfig configures the presence simulator.
type PresenceConfig struct {
	Interval time.Duration `yaml:"interval"`
	Disabled bool          `yaml:"disabled"`
}

// MessagesConfig configures the simulated agent replies.
type MessagesConfig struct {
	ReplyDelay time.Duration `yaml:"reply_delay"`
}

// NotifyConfig configures channel dispatchers.
type NotifyConfig struct {
	BannerTTL     time.Duration `yaml:"banner_ttl"`
	DesktopHost   string        `yaml:"desktop_host"` // hub or exec
	AudioPlayer   string        `yaml:"audio_player"` // hub or exec
	AudioCommand  string        `yaml:"audio_command"`
	DigestWebhook string        `yaml:"digest_webhook"`
	DigestSlack   string        `yaml:"digest_slack_webhook"`
}

// CollabConfig configures the lifecycle manager and event dispatcher.
type CollabConfig struct {
	ExecTimeout   time.Duration `yaml:"exec_timeout"` // 0 = none
	MaxConcurrent int           `yaml:"max_concurrent"`
	QueueSize     int           `yaml:"queue_size"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite (default) or postgres
	URL    string `yaml:"url"`
}

// ServerConfig protects the HTTP API.
type ServerConfig struct {
	// APIKey, when set, is required on every request (X-API-Key or ?api_key=).
	APIKey string `yaml:"api_key,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Inference: InferenceConfig{Provider: "stub"},
		Presence:  PresenceConfig{Interval: 8 * time.Second},
		Messages:  MessagesConfig{ReplyDelay: 1500 * time.Millisecond},
		Notify: NotifyConfig{
			BannerTTL:    4 * time.Second,
			DesktopHost:  "hub",
			AudioPlayer:  "hub",
			AudioCommand: "aplay",
		},
		Collab:   CollabConfig{MaxConcurrent: 8, QueueSize: 64},
		Database: DatabaseConfig{Driver: "sqlite"},
	}
}

// Load reads <home>/config.yaml (missing file is fine), fills defaults and applies
// AGENTSYNC_* environment overrides.
func Load(home string) (Config, error) {
	cfg := Default()
	if home != "" {
		data, err := os.ReadFile(Path(home))
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", FileName, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, err
		}
	}
	cfg.applyEnv()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to <home>/config.yaml.
func Save(home string, cfg Config) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(home), data, 0o600)
}

// SetAPIKey stores key as server.api_key in <home>/config.yaml, keeping every
// other setting in the file as written. An empty key removes the setting.
func SetAPIKey(home, key string) error {
	doc := map[string]any{}
	data, err := os.ReadFile(Path(home))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", FileName, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}

	server, _ := doc["server"].(map[string]any)
	if server == nil {
		server = map[string]any{}
	}
	if key == "" {
		delete(server, "api_key")
	} else {
		server["api_key"] = key
	}
	if len(server) == 0 {
		delete(doc, "server")
	} else {
		doc["server"] = server
	}

	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	// the file may now hold a secret
	return os.WriteFile(Path(home), out, 0o600)
}

// Validate rejects values the daemon cannot run with.
func (c Config) Validate() error {
	switch c.Inference.Provider {
	case "stub", "openai", "anthropic", "gemini":
	case "exec":
		if len(c.Inference.Command) == 0 {
			return errors.New("inference.command is required for the exec provider")
		}
	default:
		return fmt.Errorf("inference.provider must be stub, openai, anthropic, gemini, or exec (got %q)", c.Inference.Provider)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres (got %q)", c.Database.Driver)
	}
	switch c.Notify.DesktopHost {
	case "hub", "exec":
	default:
		return fmt.Errorf("notify.desktop_host must be hub or exec (got %q)", c.Notify.DesktopHost)
	}
	switch c.Notify.AudioPlayer {
	case "hub", "exec":
	default:
		return fmt.Errorf("notify.audio_player must be hub or exec (got %q)", c.Notify.AudioPlayer)
	}
	if c.Collab.ExecTimeout < 0 {
		return errors.New("collab.exec_timeout must not be negative")
	}
	return nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Inference.Provider == "" {
		c.Inference.Provider = d.Inference.Provider
	}
	if c.Presence.Interval <= 0 {
		c.Presence.Interval = d.Presence.Interval
	}
	if c.Messages.ReplyDelay <= 0 {
		c.Messages.ReplyDelay = d.Messages.ReplyDelay
	}
	if c.Notify.BannerTTL <= 0 {
		c.Notify.BannerTTL = d.Notify.BannerTTL
	}
	if c.Notify.DesktopHost == "" {
		c.Notify.DesktopHost = d.Notify.DesktopHost
	}
	if c.Notify.AudioPlayer == "" {
		c.Notify.AudioPlayer = d.Notify.AudioPlayer
	}
	if c.Notify.AudioCommand == "" {
		c.Notify.AudioCommand = d.Notify.AudioCommand
	}
	if c.Collab.MaxConcurrent <= 0 {
		c.Collab.MaxConcurrent = d.Collab.MaxConcurrent
	}
	if c.Collab.QueueSize <= 0 {
		c.Collab.QueueSize = d.Collab.QueueSize
	}
	if c.Database.Driver == "" {
		c.Database.Driver = d.Database.Driver
	}
}

func (c *Config) applyEnv() {
	if v := envString("AGENTSYNC_INFERENCE_PROVIDER"); v != "" {
		c.Inference.Provider = v
	}
	if v := envString("AGENTSYNC_INFERENCE_MODEL"); v != "" {
		c.Inference.Model = v
	}
	if v := envString("AGENTSYNC_INFERENCE_BASE_URL"); v != "" {
		c.Inference.BaseURL = v
	}
	if c.Inference.APIKey == "" {
		switch c.Inference.Provider {
		case "openai":
			c.Inference.APIKey = envString("OPENAI_API_KEY")
		case "anthropic":
			c.Inference.APIKey = envString("ANTHROPIC_API_KEY")
		case "gemini":
			c.Inference.APIKey = envString("GEMINI_API_KEY")
		}
	}
	if v := envString("AGENTSYNC_INFERENCE_COMMAND"); v != "" {
		c.Inference.Command = strings.Fields(v)
	}
	if v := envString("AGENTSYNC_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := envString("AGENTSYNC_DIGEST_WEBHOOK"); v != "" {
		c.Notify.DigestWebhook = v
	}
	if v := envString("SLACK_WEBHOOK_URL"); v != "" && c.Notify.DigestSlack == "" {
		c.Notify.DigestSlack = v
	}
	if v := envString("AGENTSYNC_REPLY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Messages.ReplyDelay = d
		}
	}
	if v := envString("AGENTSYNC_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Collab.MaxConcurrent = n
		}
	}
	if v := envString("DATABASE_URL"); v != "" && c.Database.URL == "" {
		c.Database.URL = v
	}
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
