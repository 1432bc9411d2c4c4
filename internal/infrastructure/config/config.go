package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Archive   ArchiveConfig
	Preview   PreviewConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string   `envconfig:"PORT" default:"8005" validate:"required,numeric"`
	Host           string   `envconfig:"HOST" default:"0.0.0.0"`
	MaxUploadBytes int64    `envconfig:"MAX_UPLOAD_BYTES" default:"67108864" validate:"gt=0"`
	CORSOrigins    []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// StorageConfig holds adapter layout configuration.
type StorageConfig struct {
	Root          string   `envconfig:"STORAGE_ROOT" default:"./cloud" validate:"required"`
	Adapters      []string `envconfig:"STORAGE_ADAPTERS" default:"document,resource,release"`
	AdaptersFile  string   `envconfig:"STORAGE_ADAPTERS_FILE"`
	CacheCapacity uint64   `envconfig:"STORAGE_CACHE_CAPACITY" default:"1024" validate:"gt=0"`
}

// AuthConfig holds caller authentication configuration.
type AuthConfig struct {
	Tokens   string `envconfig:"AUTH_TOKENS"`
	Required bool   `envconfig:"AUTH_REQUIRED" default:"true"`
}

// ArchiveConfig holds archive extraction limits.
type ArchiveConfig struct {
	MaxFiles int   `envconfig:"ARCHIVE_MAX_FILES" default:"100000" validate:"gt=0"`
	MaxBytes int64 `envconfig:"ARCHIVE_MAX_BYTES" default:"4294967296" validate:"gt=0"`
}

// PreviewConfig holds preview configuration.
type PreviewConfig struct {
	ThumbnailMax int `envconfig:"PREVIEW_THUMBNAIL_MAX" default:"256" validate:"gt=0,lte=4096"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration. The per-client limit
// always applies when Enabled; the global limit only when GlobalRequestsPerSecond
// is set. A zero GlobalBurst defaults to GlobalRequestsPerSecond.
type RateLimitConfig struct {
	RequestsPerSecond       int  `envconfig:"RATE_LIMIT_RPS" default:"100" validate:"gte=0"`
	Burst                   int  `envconfig:"RATE_LIMIT_BURST" default:"200" validate:"gte=0"`
	Enabled                 bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	GlobalRequestsPerSecond int  `envconfig:"RATE_LIMIT_GLOBAL_RPS" default:"0" validate:"gte=0"`
	GlobalBurst             int  `envconfig:"RATE_LIMIT_GLOBAL_BURST" default:"0" validate:"gte=0"`
}

// adaptersFile is the layout of STORAGE_ADAPTERS_FILE.
type adaptersFile struct {
	Adapters []vfs.AdapterSpec `yaml:"adapters" toml:"adapters" validate:"required,min=1,dive"`
}

var validate = validator.New()

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8005",
			Host:           "0.0.0.0",
			MaxUploadBytes: 64 << 20,
			CORSOrigins:    []string{"*"},
		},
		Storage: StorageConfig{
			Root:          "./cloud",
			Adapters:      []string{"document", "resource", "release"},
			CacheCapacity: vfs.DefaultCacheCapacity,
		},
		Auth: AuthConfig{
			Required: true,
		},
		Archive: ArchiveConfig{
			MaxFiles: 100000,
			MaxBytes: 4 << 30,
		},
		Preview: PreviewConfig{
			ThumbnailMax: 256,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Validate checks field constraints and the adapter layout.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.AdaptersFile == "" && len(c.Storage.Adapters) == 0 {
		return errors.New("invalid config: STORAGE_ADAPTERS must name at least one adapter")
	}
	if _, err := c.AdapterSpecs(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// AdapterSpecs returns the ordered adapter layout, read from AdaptersFile
// when set and from Adapters otherwise.
func (c *Config) AdapterSpecs() ([]vfs.AdapterSpec, error) {
	var specs []vfs.AdapterSpec
	if c.Storage.AdaptersFile != "" {
		loaded, err := LoadAdapters(c.Storage.AdaptersFile)
		if err != nil {
			return nil, err
		}
		specs = loaded
	} else {
		for _, key := range c.Storage.Adapters {
			specs = append(specs, vfs.AdapterSpec{Key: key})
		}
	}

	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if !vfs.SafeSegmentPattern.MatchString(spec.Key) {
			return nil, fmt.Errorf("adapter key %q must match %s", spec.Key, vfs.SafeSegmentPattern)
		}
		if seen[spec.Key] {
			return nil, fmt.Errorf("duplicate adapter key %q", spec.Key)
		}
		seen[spec.Key] = true
	}
	return specs, nil
}

// LoadAdapters reads an adapter layout file. Files ending in .toml are
// decoded as TOML, everything else as YAML:
//
//	adapters:
//	  - key: document
//	  - key: release
//	    dir: published
func LoadAdapters(path string) ([]vfs.AdapterSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read adapters file: %w", err)
	}

	var file adaptersFile
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("parse adapters file %s: %w", path, err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("adapters file %s: %w", path, err)
	}
	return file.Adapters, nil
}
