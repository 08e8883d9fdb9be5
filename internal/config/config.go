// Package config provides configuration management for the geminichat CLI.
// It handles loading and parsing the YAML configuration file and provides
// structured access to client settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration, loaded from a YAML file.
type Config struct {
	// CookieFile is the path to the browser-exported cookie JSON file
	// carrying __Secure-1PSID and __Secure-1PSIDTS.
	CookieFile string `yaml:"cookie-file"`

	// ConversationStore is the path of the bolt file continuation ids are
	// persisted to. Empty disables persistence.
	ConversationStore string `yaml:"conversation-store"`

	// Model selects the backend model variant by name.
	Model string `yaml:"model"`

	// ProxyURL is an optional proxy (http, https or socks5) for outbound
	// requests.
	ProxyURL string `yaml:"proxy-url"`

	// DownloadDir is where resolved images are saved.
	DownloadDir string `yaml:"download-dir"`

	// LogFile enables rotating file logging when set.
	LogFile string `yaml:"log-file"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`

	// WatchCookieFile reloads credentials when the cookie file changes.
	WatchCookieFile bool `yaml:"watch-cookie-file"`
}

// LoadConfig reads a YAML configuration file from the given path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "downloaded_images"
	}
	return &cfg, nil
}
