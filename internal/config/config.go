package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains the program configuration
type Config struct {
	MusicLibrary string        `yaml:"music_library"`
	DataDir      string        `yaml:"data_dir"`
	StaticDir    string        `yaml:"static_dir"`
	Verbose      bool          `yaml:"verbose"`
	LogFile      string        `yaml:"log_file"`
	Server       ServerConfig  `yaml:"server"`
	JobRetention time.Duration `yaml:"job_retention"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MusicLibrary: filepath.Join(homeDir(), "Music"),
		DataDir:      filepath.Join(homeDir(), ".local", "share", "musicmanager"),
		StaticDir:    "",
		Verbose:      false,
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8001,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		JobRetention: time.Hour,
	}
}

// LoadConfigFile loads configuration from a YAML file.
// If path is empty, searches standard locations. Returns defaults if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.expandPaths()

	return cfg, nil
}

func (c *Config) expandPaths() {
	c.MusicLibrary = ExpandHome(c.MusicLibrary)
	c.DataDir = ExpandHome(c.DataDir)
	c.StaticDir = ExpandHome(c.StaticDir)
	c.LogFile = ExpandHome(c.LogFile)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./musicmanager.yaml",
		"./musicmanager.yml",
		filepath.Join(home, ".config", "musicmanager", "config.yaml"),
		filepath.Join(home, ".config", "musicmanager", "config.yml"),
		filepath.Join(home, ".musicmanager.yaml"),
		filepath.Join(home, ".musicmanager.yml"),
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the current configuration to a YAML file
func SaveConfigFile(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "musicmanager", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "musicmanager", "logs")
}

// DatabasePath is the SQLite file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "data.db")
}

// CacheDir is where imports are staged before moving into the library.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MusicLibrary == "" {
		return fmt.Errorf("music_library cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts cannot be negative")
	}
	if c.JobRetention < 0 {
		return fmt.Errorf("job_retention cannot be negative, got %s", c.JobRetention)
	}
	if c.StaticDir != "" {
		info, err := os.Stat(c.StaticDir)
		if err != nil {
			return fmt.Errorf("static_dir %s: %w", c.StaticDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("static_dir %s is not a directory", c.StaticDir)
		}
	}

	return nil
}
