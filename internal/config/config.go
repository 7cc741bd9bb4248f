package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models faultline.yml.
type Config struct {
	Site struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"site"`
	Urgencies []string `yaml:"urgencies"`
	// Labels maps display-label and confirmation-text keys carried by
	// transition actions to human-readable strings. UI layers resolve
	// keys through this catalog; unknown keys fall back to the key.
	Labels   map[string]string `yaml:"labels"`
	Webhooks []WebhookConfig   `yaml:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with fl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Site.ID == "" {
		return fmt.Errorf("config.site.id is required")
	}
	if len(c.Urgencies) == 0 {
		return fmt.Errorf("config.urgencies is required")
	}
	for _, u := range c.Urgencies {
		if u == "" {
			return fmt.Errorf("config.urgencies contains an empty level")
		}
	}
	for key, text := range c.Labels {
		if key == "" {
			return fmt.Errorf("config.labels contains an empty key")
		}
		if text == "" {
			return fmt.Errorf("label %s has empty text", key)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Label resolves a label key, falling back to the key itself.
func (c *Config) Label(key string) string {
	if c == nil || c.Labels == nil {
		return key
	}
	if text, ok := c.Labels[key]; ok {
		return text
	}
	return key
}

// HasUrgency reports whether the level is in the catalog.
func (c *Config) HasUrgency(level string) bool {
	for _, u := range c.Urgencies {
		if u == level {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "faultline.yml")
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a site.
func Default(siteID string) *Config {
	var cfg Config
	cfg.Site.ID = siteID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, siteID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `site:
  id: %s
  name: Default Site

urgencies: [low, normal, high, emergency]

labels:
  fault.action.acknowledge: "Acknowledge"
  fault.action.start: "Start work"
  fault.action.resume: "Resume work"
  fault.action.rework: "Redo work"
  fault.action.wait: "Put on hold"
  fault.action.complete: "Mark completed"
  fault.action.accept_work: "Accept work"
  fault.action.reject_work: "Reject work"
  fault.action.confirm_fix: "Confirm fix"
  fault.action.close: "Close"
  fault.action.close_own: "Close my report"
  fault.action.withdraw: "Withdraw report"
  fault.action.cancel: "Cancel report"
  fault.action.not_possible: "Mark not repairable"
  fault.confirm.close_own.title: "Close this report?"
  fault.confirm.close_own.body: "The report will be closed without repair work. This cannot be undone."
  fault.confirm.withdraw.title: "Withdraw this report?"
  fault.confirm.withdraw.body: "The report will be removed from the work queue. This cannot be undone."
  fault.confirm.cancel.title: "Cancel this report?"
  fault.confirm.cancel.body: "The report will be cancelled without resolution. This cannot be undone."
  fault.confirm.not_possible.title: "Mark as not repairable?"
  fault.confirm.not_possible.body: "The report will be closed as not repairable. This cannot be undone."
  fault.error.permission_denied: "You are not allowed to do that right now."
  fault.error.failed_precondition: "The report has changed; the action is no longer valid."
  fault.error.not_found: "The report no longer exists."
  fault.error.generic: "Something went wrong. Please try again."
`
