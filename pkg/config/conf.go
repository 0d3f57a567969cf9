package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/tally/pkg/data"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the name of the config file inside the app directory.
	FileName = "config.yaml"

	dirMode  = 0700
	fileMode = 0600

	defaultLower  = 1.0
	defaultUpper  = 5.0
	defaultShards = 4
	defaultLevel  = "info"
)

// Bounds is the range of valid rating values.
type Bounds struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// Store configures where partial counters are persisted.
type Store struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Config represents app config object.
type Config struct {
	Bounds    Bounds `yaml:"bounds"`
	Shards    int    `yaml:"shards"`
	Workers   int    `yaml:"workers"`
	Store     Store  `yaml:"store"`
	LogLevel  string `yaml:"logLevel"`
	SourceURL string `yaml:"sourceUrl,omitempty"`
}

// Default returns the config used when no file exists yet.
// The sqlite database is placed in dirPath.
func Default(dirPath string) *Config {
	return &Config{
		Bounds: Bounds{
			Lower: defaultLower,
			Upper: defaultUpper,
		},
		Shards:   defaultShards,
		Workers:  0,
		LogLevel: defaultLevel,
		Store: Store{
			Driver: data.DriverSQLite,
			DSN:    filepath.Join(dirPath, data.DataFileName),
		},
	}
}

// Validate checks the config for values the app can not work with.
func (c *Config) Validate() error {
	for _, v := range []float64{c.Bounds.Lower, c.Bounds.Upper} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid bounds: %v is not a finite number", v)
		}
	}
	if c.Bounds.Upper < c.Bounds.Lower {
		return fmt.Errorf("invalid bounds: upper %v is less than lower %v", c.Bounds.Upper, c.Bounds.Lower)
	}
	if c.Shards < 1 {
		return fmt.Errorf("invalid shard count: %d", c.Shards)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid worker count: %d", c.Workers)
	}
	switch c.Store.Driver {
	case data.DriverSQLite, data.DriverPostgres:
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return errors.New("store dsn required")
	}
	return nil
}

// Save writes c into dirPath.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, FileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, FileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default(dirPath)); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	return Read(path)
}

// Read parses the config file at path. Missing fields keep their defaults.
func Read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	c := Default(filepath.Dir(path))
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return c, nil
}

// GetOrCreateHomeDir returns the app directory in the current user's home.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
