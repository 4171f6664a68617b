// Package config provides unified configuration for the avrojet
// command-line tools.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/avrojet/avrojet/internal/compress"
)

// Config holds the shared tool configuration.
type Config struct {
	// Codec is the block compression codec for written files.
	Codec string `json:"codec" yaml:"codec"`

	// BlockSizeKiB is the block flush threshold in KiB.
	BlockSizeKiB int `json:"block_size_kib" yaml:"block_size_kib"`

	// Concurrency is the number of files processed in parallel.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// MaxAllocMiB bounds a single decode allocation in MiB.
	MaxAllocMiB int `json:"max_alloc_mib" yaml:"max_alloc_mib"`
}

// DefaultConfig returns the default tool configuration.
func DefaultConfig() *Config {
	return &Config{
		Codec:        compress.CodecNull,
		BlockSizeKiB: 64,
		Concurrency:  4,
		MaxAllocMiB:  512,
	}
}

// BlockSize returns the block threshold in bytes.
func (c *Config) BlockSize() int { return c.BlockSizeKiB * 1024 }

// MaxAlloc returns the allocation bound in bytes.
func (c *Config) MaxAlloc() int { return c.MaxAllocMiB * 1024 * 1024 }

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := compress.ByName(c.Codec); err != nil {
		return fmt.Errorf("invalid codec %q (must be one of %s)", c.Codec, strings.Join(compress.Names(), ", "))
	}
	if c.BlockSizeKiB < 1 || c.BlockSizeKiB > 16*1024 {
		return fmt.Errorf("block_size_kib must be between 1 and 16384, got %d", c.BlockSizeKiB)
	}
	if c.Concurrency < 1 || c.Concurrency > 256 {
		return fmt.Errorf("concurrency must be between 1 and 256, got %d", c.Concurrency)
	}
	if c.MaxAllocMiB < 1 {
		return fmt.Errorf("max_alloc_mib must be positive, got %d", c.MaxAllocMiB)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides configuration from environment variables.
// Environment variables use the AVROJET_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("AVROJET_CODEC"); v != "" {
		cfg.Codec = v
	}
	if v := os.Getenv("AVROJET_BLOCK_SIZE_KIB"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.BlockSizeKiB)
	}
	if v := os.Getenv("AVROJET_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Concurrency)
	}
	if v := os.Getenv("AVROJET_MAX_ALLOC_MIB"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.MaxAllocMiB)
	}
}
