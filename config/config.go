package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Zhannyhong/cdc-bot/core/booking"
	"github.com/Zhannyhong/cdc-bot/infra/notify"
	"github.com/Zhannyhong/cdc-bot/infra/portal"
)

// Config is the root configuration document.
type Config struct {
	Portal   portal.Config         `json:"portal"`
	Program  ProgramConfig         `json:"program"`
	Telegram notify.TelegramConfig `json:"telegram"`
	Mail     notify.MailConfig     `json:"mail"`
	Metrics  MetricsConfig         `json:"metrics"`
	Logging  LoggingConfig         `json:"logging"`
}

// ProgramConfig controls the monitoring loop and the reservation engine.
type ProgramConfig struct {
	AutoReserve        bool `json:"auto_reserve"`
	ReserveSameDay     bool `json:"reserve_for_same_day"`
	BookFromOtherTeams bool `json:"book_from_other_teams"`
	// RefreshSeconds is the pause between cycles; zero runs a single cycle.
	RefreshSeconds int  `json:"refresh_seconds"`
	AutoRestart    bool `json:"auto_restart"`
	// Monitored lists category names in processing order.
	Monitored []string `json:"monitored"`
	// Slots maps category name to its reservation quota.
	Slots map[string]int `json:"slots"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `json:"level"`
}

// SetDefaults fills unset logging fields.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// SetDefaults fills unset metrics fields.
func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusPort == "" {
		c.PrometheusPort = "2112"
	}
}

// Validate checks the program section.
func (c *ProgramConfig) Validate() error {
	if len(c.Monitored) == 0 {
		return fmt.Errorf("program.monitored must list at least one category")
	}
	seen := map[string]bool{}
	for _, name := range c.Monitored {
		if _, err := booking.ParseCategory(name); err != nil {
			return fmt.Errorf("program.monitored: %w", err)
		}
		if seen[name] {
			return fmt.Errorf("program.monitored lists %q twice", name)
		}
		seen[name] = true
	}
	for name, quota := range c.Slots {
		if _, err := booking.ParseCategory(name); err != nil {
			return fmt.Errorf("program.slots: %w", err)
		}
		if quota < 0 {
			return fmt.Errorf("program.slots.%s must not be negative", name)
		}
	}
	if c.RefreshSeconds < 0 {
		return fmt.Errorf("program.refresh_seconds must not be negative")
	}
	return nil
}

// MonitoredCategories returns the monitored categories in configured order.
// Validate must pass first.
func (c *ProgramConfig) MonitoredCategories() []booking.Category {
	cats := make([]booking.Category, 0, len(c.Monitored))
	for _, name := range c.Monitored {
		cat, err := booking.ParseCategory(name)
		if err != nil {
			continue
		}
		cats = append(cats, cat)
	}
	return cats
}

// Quota returns the configured reservation quota for a category.
func (c *ProgramConfig) Quota(cat booking.Category) int {
	return c.Slots[cat.String()]
}

// Load reads the configuration file (yaml or json by extension) and applies
// CDC_-prefixed environment overrides, "__" standing in for ".".
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("CDC_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "cdc_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Logging.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-section consistency.
func (c *Config) Validate() error {
	if c.Portal.Username == "" || c.Portal.Password == "" {
		return fmt.Errorf("portal.username and portal.password are required")
	}
	if err := c.Program.Validate(); err != nil {
		return err
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if c.Mail.Enabled && c.Mail.Server == "" {
		return fmt.Errorf("mail.server is required when mail is enabled")
	}
	return nil
}
