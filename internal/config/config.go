// Package config loads application configuration from config.json and environment variables.
package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Proxy holds optional proxy settings for the Telegram connection.
// Type is "socks5" or "mtproto"; an empty Server disables the proxy.
type Proxy struct {
	Type     string `json:"type"`
	Server   string `json:"server"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Secret   string `json:"secret,omitempty"`
}

// Enabled reports whether the proxy block describes a usable proxy.
func (p Proxy) Enabled() bool {
	return p.Server != ""
}

// Addr returns the proxy endpoint in host:port form.
func (p Proxy) Addr() string {
	return fmt.Sprintf("%s:%d", p.Server, p.Port)
}

// Config holds the Telegram API credentials and proxy settings from config.json.
type Config struct {
	APIID   int    `json:"api_id"`
	APIHash string `json:"api_hash"`
	Proxy   Proxy  `json:"proxy"`
}

// Settings holds ambient runtime settings taken from the environment.
type Settings struct {
	ConfigFile  string
	RulesFile   string
	SessionFile string
	LogLevel    string
	LogFile     string
}

// LoadSettings reads runtime settings from environment variables with sensible defaults.
func LoadSettings() Settings {
	return Settings{
		ConfigFile:  getEnv("CONFIG_FILE", "config.json"),
		RulesFile:   getEnv("RULES_FILE", "forwarding_rules.json"),
		SessionFile: getEnv("SESSION_FILE", "telegram_session.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),
	}
}

// Load reads config.json from path. If the file does not exist, a default
// skeleton is written there and returned, so the user has something to fill in.
// Invalid JSON is a hard error: the caller is expected to terminate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := &Config{}
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config back to path as indented JSON.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// PromptCredentials interactively asks for missing API credentials and fills
// them into cfg. Used on first start when config.json holds the default skeleton.
func PromptCredentials(in io.Reader, out io.Writer, cfg *Config) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "\nPlease provide your Telegram API credentials (https://my.telegram.org):")

	fmt.Fprint(out, "Enter your Telegram API ID: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read api id: %w", err)
	}
	apiID, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return fmt.Errorf("invalid api id: %w", err)
	}

	fmt.Fprint(out, "Enter your Telegram API hash: ")
	line, err = reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read api hash: %w", err)
	}

	cfg.APIID = apiID
	cfg.APIHash = strings.TrimSpace(line)
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
