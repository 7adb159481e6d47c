// Package config handles application configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Auth   AuthConfig   `mapstructure:"auth" yaml:"auth"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr" yaml:"listen_addr"`
	MaxConnections  int    `mapstructure:"max_connections" yaml:"max_connections"`
	DefaultDatabase string `mapstructure:"default_database" yaml:"default_database"`
	DefaultSchema   string `mapstructure:"default_schema" yaml:"default_schema"`
	// Trust skips password authentication entirely.
	Trust bool `mapstructure:"trust" yaml:"trust"`
	// WireTrace logs frame hex dumps at debug level.
	WireTrace bool `mapstructure:"wire_trace" yaml:"wire_trace"`
}

type AuthConfig struct {
	// RootDir is where users.yaml lives.
	RootDir string `mapstructure:"root_dir" yaml:"root_dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:5432",
			MaxConnections:  100,
			DefaultDatabase: "clarium",
			DefaultSchema:   "public",
		},
		Auth: AuthConfig{
			RootDir: defaultRootDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultRootDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clarium"
	}
	return filepath.Join(home, ".clarium")
}

// Load reads configuration from file and environment variables. Environment
// keys use the CLARIUM_ prefix with underscores, e.g. CLARIUM_SERVER_TRUST.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("server.listen_addr", defaults.Server.ListenAddr)
	v.SetDefault("server.max_connections", defaults.Server.MaxConnections)
	v.SetDefault("server.default_database", defaults.Server.DefaultDatabase)
	v.SetDefault("server.default_schema", defaults.Server.DefaultSchema)
	v.SetDefault("server.trust", false)
	v.SetDefault("server.wire_trace", false)
	v.SetDefault("auth.root_dir", defaults.Auth.RootDir)
	v.SetDefault("log.level", defaults.Log.Level)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultRootDir())
		v.AddConfigPath("/etc/clarium")
	}

	v.SetEnvPrefix("clarium")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks invariants the server cannot start without.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if !c.Server.Trust && c.Auth.RootDir == "" {
		return fmt.Errorf("auth.root_dir is required unless server.trust is set")
	}
	return nil
}
