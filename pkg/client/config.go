package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Config stores client preferences loaded from YAML. Command-line flags
// override file values.
type Config struct {
	ServerAddr string `yaml:"server_addr"`
	PeerHost   string `yaml:"peer_host"` // peer listener bind host ("" = all interfaces)
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
}

// DefaultConfig returns default settings.
func DefaultConfig() Config {
	return Config{
		ServerAddr: "127.0.0.1:9001",
		LogLevel:   "warn",
		LogFormat:  "text",
	}
}

// LoadConfig loads settings from YAML. A missing file yields defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("client: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig. Unknown keys are errors.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("client: parse config: %w", err)
	}
	if cfg.ServerAddr == "" {
		return Config{}, errors.New("client: config: server_addr must not be empty")
	}
	return cfg, nil
}

// Save writes settings to YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
