package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings the supervisor needs to keep a server current and running.
type Config struct {
	// Endpoint is the base URL of the build registry API.
	Endpoint string `yaml:"endpoint"`
	// Project is the registry project whose builds are tracked.
	Project string `yaml:"project"`
	// GameVersion is the game version to follow, or "latest" to resolve
	// the newest released version from the registry.
	GameVersion string `yaml:"game_version"`
	// ServerDirectory is the directory holding the server artifact and its data.
	ServerDirectory string `yaml:"server_directory"`
	// ServerMemory is the JVM heap size, e.g. "6G" or "512M".
	ServerMemory string `yaml:"server_memory"`
	// JavaPath is the java executable used to launch the server.
	JavaPath string `yaml:"java_path"`
	// PromptTimeout is how long the restart prompt waits for operator input.
	PromptTimeout time.Duration `yaml:"prompt_timeout"`
	// RequestTimeout is the duration for registry metadata requests.
	// Artifact downloads are not subject to it.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MetricsAddress is the listen address for the diagnostics endpoint.
	// Empty disables the endpoint.
	MetricsAddress string `yaml:"metrics_address"`
}

const (
	// DefaultConfigFilename is the default filename for supervisor settings.
	DefaultConfigFilename = "paperward.yaml"

	// DefaultEndpoint is the public build registry API.
	DefaultEndpoint = "https://api.papermc.io/v2"

	// DefaultProject is the registry project to track.
	DefaultProject = "paper"

	// DefaultGameVersion resolves to the newest released game version.
	DefaultGameVersion = "latest"

	// DefaultServerDirectory keeps the server next to the supervisor.
	DefaultServerDirectory = "."

	// DefaultServerMemory is the default JVM heap size.
	DefaultServerMemory = "6G"

	// DefaultJavaPath launches java from PATH.
	DefaultJavaPath = "java"

	// DefaultPromptTimeout is how long the restart prompt waits before
	// restarting on its own.
	DefaultPromptTimeout = 10 * time.Second

	// DefaultRequestTimeout is the default duration for registry requests.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidServerMemory is returned when the heap size has an unknown format.
	errInvalidServerMemory = errors.New("server memory must be a number followed by K, M or G")

	// memoryPattern matches JVM heap sizes such as "512M" or "6G".
	memoryPattern = regexp.MustCompile(`^[0-9]+[KkMmGg]$`)
)

// Default returns a configuration with every field set to its default value.
func Default() *Config {
	return &Config{
		Endpoint:        DefaultEndpoint,
		Project:         DefaultProject,
		GameVersion:     DefaultGameVersion,
		ServerDirectory: DefaultServerDirectory,
		ServerMemory:    DefaultServerMemory,
		JavaPath:        DefaultJavaPath,
		PromptTimeout:   DefaultPromptTimeout,
		RequestTimeout:  DefaultRequestTimeout,
		MetricsAddress:  "",
	}
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills in defaults for missing fields and checks the rest for format errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}

	if !memoryPattern.MatchString(cfg.ServerMemory) {
		return fmt.Errorf("%q: %w", cfg.ServerMemory, errInvalidServerMemory)
	}

	if cfg.MetricsAddress == "" {
		return nil
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.MetricsAddress); err != nil {
		return fmt.Errorf("invalid metrics address: %w", err)
	}

	return nil
}

// applyDefaults replaces zero values with the documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	if cfg.Project == "" {
		cfg.Project = DefaultProject
	}

	if cfg.GameVersion == "" {
		cfg.GameVersion = DefaultGameVersion
	}

	if cfg.ServerDirectory == "" {
		cfg.ServerDirectory = DefaultServerDirectory
	}

	if cfg.ServerMemory == "" {
		cfg.ServerMemory = DefaultServerMemory
	}

	if cfg.JavaPath == "" {
		cfg.JavaPath = DefaultJavaPath
	}

	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = DefaultPromptTimeout
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
}
