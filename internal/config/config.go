package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models guildline.yml.
type Config struct {
	Guild struct {
		Name string `yaml:"name"`
	} `yaml:"guild"`
	Economy struct {
		InformationPrice int64 `yaml:"information_price"`
		MoneyPerCoin     int64 `yaml:"money_per_coin"`
		// MaxCoinPurchase caps a single buy-coins call; 0 means unlimited.
		MaxCoinPurchase int64 `yaml:"max_coin_purchase"`
	} `yaml:"economy"`
	Missions struct {
		Description Bounds `yaml:"description"`
		Details     Bounds `yaml:"details"`
	} `yaml:"missions"`
	Evidence struct {
		MaxBytes      int64    `yaml:"max_bytes"`
		AcceptedTypes []string `yaml:"accepted_types"`
	} `yaml:"evidence"`
	Notifications struct {
		WebhookURL     string `yaml:"webhook_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"notifications"`
}

// Bounds is an inclusive character-count range.
type Bounds struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

func (b Bounds) Contains(n int) bool { return n >= b.Min && n <= b.Max }

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with gl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Economy.InformationPrice <= 0 {
		return fmt.Errorf("config.economy.information_price must be positive")
	}
	if c.Economy.MoneyPerCoin <= 0 {
		return fmt.Errorf("config.economy.money_per_coin must be positive")
	}
	if c.Economy.MaxCoinPurchase < 0 {
		return fmt.Errorf("config.economy.max_coin_purchase must not be negative")
	}
	for name, b := range map[string]Bounds{"description": c.Missions.Description, "details": c.Missions.Details} {
		if b.Min < 1 || b.Max < b.Min {
			return fmt.Errorf("config.missions.%s bounds invalid: min=%d max=%d", name, b.Min, b.Max)
		}
	}
	if c.Evidence.MaxBytes <= 0 {
		return fmt.Errorf("config.evidence.max_bytes must be positive")
	}
	if len(c.Evidence.AcceptedTypes) == 0 {
		return fmt.Errorf("config.evidence.accepted_types is required")
	}
	for _, t := range c.Evidence.AcceptedTypes {
		if !strings.Contains(t, "/") {
			return fmt.Errorf("evidence type %q is not a media type", t)
		}
	}
	if u := c.Notifications.WebhookURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("config.notifications.webhook_url must be http(s)")
	}
	if c.Notifications.TimeoutSeconds < 0 {
		return fmt.Errorf("config.notifications.timeout_seconds must not be negative")
	}
	return nil
}

// AcceptsEvidence reports whether contentType is an accepted evidence type.
func (c *Config) AcceptsEvidence(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, t := range c.Evidence.AcceptedTypes {
		if strings.EqualFold(t, ct) {
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
	return filepath.Join(workspace, "guildline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(guildName string) string {
	return fmt.Sprintf(defaultTemplate, guildName)
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

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("guild"))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `guild:
  name: %s

economy:
  information_price: 100
  money_per_coin: 10
  max_coin_purchase: 0

missions:
  description:
    min: 3
    max: 50
  details:
    min: 3
    max: 500

evidence:
  max_bytes: 5242880
  accepted_types: [image/jpeg, image/jpg, image/png, image/webp]

notifications:
  webhook_url: ""
  timeout_seconds: 5
`
