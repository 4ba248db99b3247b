// Package config provides unified configuration loading for the table extractor.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the table extractor.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upload        UploadConfig        `yaml:"upload"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Orientation   OrientationConfig   `yaml:"orientation"`
	TableOCR      TableOCRConfig      `yaml:"table_ocr"`
	Seal          SealConfig          `yaml:"seal"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// UploadConfig holds upload validation settings.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	MaxWidth    int     `yaml:"max_width"`
	MaxWorkers  int     `yaml:"max_workers"`
	ScratchDir  string  `yaml:"scratch_dir"`
	RetainedDir string  `yaml:"retained_dir"`
	PDFDPI      float64 `yaml:"pdf_dpi"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

// OrientationConfig selects the table detection backend.
type OrientationConfig struct {
	Driver  string        `yaml:"driver"` // remote or fullpage
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// TableOCRConfig selects the table recognition backend.
type TableOCRConfig struct {
	Driver   string        `yaml:"driver"` // remote or tesseract
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	Language string        `yaml:"language"`
}

// SealConfig holds the seal recognition service settings.
type SealConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             13006,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     5 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 15 * time.Second,
		},
		Upload: UploadConfig{
			MaxBytes: 50 * 1024 * 1024,
		},
		Pipeline: PipelineConfig{
			MaxWidth:    1200,
			MaxWorkers:  runtime.NumCPU(),
			ScratchDir:  os.TempDir(),
			RetainedDir: "preprocessed_images",
			PDFDPI:      200,
			JPEGQuality: 95,
		},
		Orientation: OrientationConfig{
			Driver:  "fullpage",
			Timeout: 2 * time.Minute,
		},
		TableOCR: TableOCRConfig{
			Driver:   "tesseract",
			Timeout:  5 * time.Minute,
			Language: "eng",
		},
		Seal: SealConfig{
			Timeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "table-extractor",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}

	if c.Pipeline.MaxWidth < 1 {
		return fmt.Errorf("pipeline.max_width must be positive")
	}

	if c.Pipeline.MaxWorkers < 1 {
		return fmt.Errorf("pipeline.max_workers must be positive")
	}

	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		return fmt.Errorf("pipeline.jpeg_quality must be between 1 and 100, got %d", c.Pipeline.JPEGQuality)
	}

	switch c.Orientation.Driver {
	case "fullpage":
	case "remote":
		if c.Orientation.URL == "" {
			return fmt.Errorf("orientation.url is required for the remote driver")
		}
	default:
		return fmt.Errorf("invalid orientation driver: %s", c.Orientation.Driver)
	}

	switch c.TableOCR.Driver {
	case "tesseract":
	case "remote":
		if c.TableOCR.URL == "" {
			return fmt.Errorf("table_ocr.url is required for the remote driver")
		}
	default:
		return fmt.Errorf("invalid table_ocr driver: %s", c.TableOCR.Driver)
	}

	if c.Seal.Timeout <= 0 {
		return fmt.Errorf("seal.timeout must be positive")
	}

	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("SEAL_SERVICE_URL"); v != "" {
		cfg.Seal.URL = v
	}

	if v := os.Getenv("ORIENTATION_URL"); v != "" {
		cfg.Orientation.Driver = "remote"
		cfg.Orientation.URL = v
	}

	if v := os.Getenv("TABLE_OCR_URL"); v != "" {
		cfg.TableOCR.Driver = "remote"
		cfg.TableOCR.URL = v
	}

	if v := os.Getenv("TABLE_OCR_DRIVER"); v != "" {
		cfg.TableOCR.Driver = strings.ToLower(v)
	}

	if v := os.Getenv("SCRATCH_DIR"); v != "" {
		cfg.Pipeline.ScratchDir = v
	}

	if v := os.Getenv("RETAINED_DIR"); v != "" {
		cfg.Pipeline.RetainedDir = v
	}

	if v := os.Getenv("MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxWorkers = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
