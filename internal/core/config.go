package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/jo-hoe/faceswap/internal/facemodel"
	"github.com/jo-hoe/faceswap/internal/imageio"
	"github.com/jo-hoe/faceswap/internal/session"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "config.yaml"

type UploadConfig struct {
	// MaxBytes limits each uploaded file; 0 means unlimited.
	MaxBytes          int64    `yaml:"maxBytes" validate:"gte=0"`
	AllowedExtensions []string `yaml:"allowedExtensions" validate:"required,min=1"`
}

// ConfidenceConfig describes the detection confidence slider.
type ConfidenceConfig struct {
	Min     float32 `yaml:"min" validate:"gt=0,lte=1"`
	Max     float32 `yaml:"max" validate:"gt=0,lte=1"`
	Step    float32 `yaml:"step" validate:"gt=0,lte=1"`
	Default float32 `yaml:"default" validate:"gt=0,lte=1"`
}

// Clamp limits value to the slider range; values <= 0, NaN and infinities
// select the default.
func (c ConfidenceConfig) Clamp(value float32) float32 {
	if value <= 0 || math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
		return c.Default
	}
	return min(max(value, c.Min), c.Max)
}

type ServiceConfig struct {
	Port       int              `yaml:"port" validate:"gte=0,lte=65535"`
	LogLevel   string           `yaml:"logLevel" validate:"omitempty,oneof=debug info warn warning error"`
	Upload     UploadConfig     `yaml:"upload"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Session    session.Config   `yaml:"session"`
	Models     facemodel.Config `yaml:"models"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:     8080,
		LogLevel: "info",
		Upload: UploadConfig{
			AllowedExtensions: append([]string(nil), imageio.DefaultExtensions...),
		},
		Confidence: ConfidenceConfig{Min: 0.1, Max: 1.0, Step: 0.1, Default: 0.5},
		Session: session.Config{
			Type:      session.TypeMemory,
			Namespace: "faceswap",
			TTL:       24 * time.Hour,
		},
		Models: facemodel.DefaultConfig(),
	}
}

// LoadConfig reads the YAML file at configPath over the defaults, applies
// environment overrides and validates the result.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}
	return config, nil
}

// LoadConfigFromEnv loads a .env file if present, then the config file named by
// CONFIG_PATH, falling back to ./config.yaml and finally to the defaults.
func LoadConfigFromEnv() (*ServiceConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath != "" {
		return LoadConfig(configPath)
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return LoadConfig(DefaultConfigPath)
	}

	slog.Info("no config file found, using defaults")
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *ServiceConfig) error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		config.Port = p
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = strings.ToLower(level)
	}
	return nil
}

func validateConfig(config *ServiceConfig) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}

	c := config.Confidence
	if c.Min > c.Max {
		return fmt.Errorf("confidence min %.2f is greater than max %.2f", c.Min, c.Max)
	}
	if c.Default < c.Min || c.Default > c.Max {
		return fmt.Errorf("confidence default %.2f is outside [%.2f, %.2f]", c.Default, c.Min, c.Max)
	}

	for _, ext := range config.Upload.AllowedExtensions {
		if !imageio.IsAllowedExtension("file."+ext, imageio.DefaultExtensions) {
			return fmt.Errorf("unsupported upload extension: %s", ext)
		}
	}
	return nil
}
