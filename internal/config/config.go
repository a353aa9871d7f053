// Copyright 2024 AgriGenius Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the AgriGenius configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ErrInvalidConfigValue is returned when a configuration value is invalid
var ErrInvalidConfigValue = errors.New("invalid configuration value")

// Provider names accepted by model.provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Encyclopedia image sources.
const (
	ImageSourcePlaceholder = "placeholder"
	ImageSourceGemini      = "gemini"
)

// Config represents the complete application configuration
type Config struct {
	Model        ModelConfig        `mapstructure:"model"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	Server       ServerConfig       `mapstructure:"server"`
	Encyclopedia EncyclopediaConfig `mapstructure:"encyclopedia"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ModelConfig selects the generative model backend shared by all flows.
type ModelConfig struct {
	Provider       string  `mapstructure:"provider"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	// MaxRetries applies to transient transport failures only. Zero disables retries.
	MaxRetries int `mapstructure:"max_retries"`
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey   string `mapstructure:"apikey"`
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
}

// GeminiConfig contains Gemini API configuration
type GeminiConfig struct {
	APIKey     string `mapstructure:"apikey"`
	Model      string `mapstructure:"model"`
	ImageModel string `mapstructure:"image_model"`
}

// ServerConfig contains the form-action server settings
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb"`
}

// EncyclopediaConfig selects where encyclopedia images come from.
type EncyclopediaConfig struct {
	ImageSource    string `mapstructure:"image_source"`
	PlaceholderURL string `mapstructure:"placeholder_url"`
}

// AuditConfig configures the invocation ledger. Storage "none" disables it.
type AuditConfig struct {
	StorageType string `mapstructure:"storage_type"`
	FilePath    string `mapstructure:"file_path"`
	DBPath      string `mapstructure:"db_path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath string
	// ValidateRequired also demands the credentials of the selected provider.
	// Value checks always run.
	ValidateRequired bool
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AGRIGENIUS")

	if err := v.ReadInConfig(); err != nil {
		// Running from environment variables alone is allowed
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config, opts.ValidateRequired); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.provider", ProviderOpenAI)
	v.SetDefault("model.temperature", 0.4)
	v.SetDefault("model.timeout_seconds", 60)
	v.SetDefault("model.max_retries", 0)

	v.SetDefault("openai.endpoint", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o")

	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.image_model", "imagen-3.0-generate-002")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.max_upload_mb", 8)

	v.SetDefault("encyclopedia.image_source", ImageSourcePlaceholder)
	v.SetDefault("encyclopedia.placeholder_url", "https://picsum.photos/seed/pest/600/400")

	v.SetDefault("audit.storage_type", "none")
	v.SetDefault("audit.file_path", "./invocations.log")
	v.SetDefault("audit.db_path", "./invocations.db")

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.service_name", "agrigenius")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// setConfigFile resolves CONFIG_PATH, then configPath, then ./configs/config.yaml or ./config.yaml.
func setConfigFile(v *viper.Viper, configPath string) error {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	return nil
}

func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"OPENAI_API_KEY":  "openai.apikey",
		"OPENAI_ENDPOINT": "openai.endpoint",
		"OPENAI_MODEL":    "openai.model",
		"GEMINI_API_KEY":  "gemini.apikey",
		"GOOGLE_API_KEY":  "gemini.apikey",
		"MODEL_PROVIDER":  "model.provider",
		"PORT":            "server.port",
		"LOG_LEVEL":       "logging.level",
		"LOG_FORMAT":      "logging.format",
		"LOG_OUTPUT":      "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

func validateConfig(config *Config, requireCredentials bool) error {
	var errs []ValidationError
	add := func(field, message string) {
		errs = append(errs, ValidationError{Field: field, Message: message})
	}

	providers := []string{ProviderOpenAI, ProviderGemini}
	if !slices.Contains(providers, config.Model.Provider) {
		add("model.provider", fmt.Sprintf("provider must be one of: %s", strings.Join(providers, ", ")))
	}

	if requireCredentials {
		if config.Model.Provider == ProviderOpenAI && config.OpenAI.APIKey == "" {
			add("openai.apikey", "OpenAI API key is required. Set via config file or OPENAI_API_KEY environment variable")
		}
		needsGemini := config.Model.Provider == ProviderGemini || config.Encyclopedia.ImageSource == ImageSourceGemini
		if needsGemini && config.Gemini.APIKey == "" {
			add("gemini.apikey", "Gemini API key is required. Set via config file or GEMINI_API_KEY environment variable")
		}
	}

	if config.Model.Temperature < 0 || config.Model.Temperature > 2 {
		add("model.temperature", "temperature must be between 0 and 2")
	}
	if config.Model.TimeoutSeconds <= 0 {
		add("model.timeout_seconds", "timeout_seconds must be greater than 0")
	}
	if config.Model.MaxRetries < 0 {
		add("model.max_retries", "max_retries must be greater than or equal to 0")
	}
	if config.Server.MaxUploadMB <= 0 {
		add("server.max_upload_mb", "max_upload_mb must be greater than 0")
	}

	imageSources := []string{ImageSourcePlaceholder, ImageSourceGemini}
	if !slices.Contains(imageSources, config.Encyclopedia.ImageSource) {
		add("encyclopedia.image_source", fmt.Sprintf("image source must be one of: %s", strings.Join(imageSources, ", ")))
	}
	if config.Encyclopedia.ImageSource == ImageSourcePlaceholder && config.Encyclopedia.PlaceholderURL == "" {
		add("encyclopedia.placeholder_url", "placeholder_url is required for the placeholder image source")
	}

	storageTypes := []string{"none", "file", "sqlite"}
	if !slices.Contains(storageTypes, config.Audit.StorageType) {
		add("audit.storage_type", fmt.Sprintf("storage type must be one of: %s", strings.Join(storageTypes, ", ")))
	}
	if config.Audit.StorageType == "sqlite" && config.Audit.DBPath != "" {
		if err := validateDirectoryExists(filepath.Dir(config.Audit.DBPath)); err != nil {
			add("audit.db_path", fmt.Sprintf("audit database directory does not exist: %s", filepath.Dir(config.Audit.DBPath)))
		}
	}

	exporters := []string{"none", "stdout", "otlp"}
	if !slices.Contains(exporters, config.Tracing.Exporter) {
		add("tracing.exporter", fmt.Sprintf("exporter must be one of: %s", strings.Join(exporters, ", ")))
	}
	if config.Tracing.SampleRatio < 0 || config.Tracing.SampleRatio > 1 {
		add("tracing.sample_ratio", "sample_ratio must be between 0 and 1")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, config.Logging.Level) {
		add("logging.level", fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, config.Logging.Format) {
		add("logging.format", fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errs) == 0 {
		return nil
	}

	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Error())
	}
	return fmt.Errorf("%w:\n%s", ErrInvalidConfigValue, strings.Join(messages, "\n"))
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c
	masked.OpenAI.APIKey = maskValue(masked.OpenAI.APIKey)
	masked.Gemini.APIKey = maskValue(masked.Gemini.APIKey)
	return &masked
}

// maskValue keeps the first 8 characters of long values and hides the rest.
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

func validateDirectoryExists(path string) error {
	if path == "" || path == "." {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	return nil
}

// WatchConfig reloads the configuration whenever the file changes and hands the
// new value to callback. Invalid edits are logged and ignored.
func WatchConfig(configPath string, logger *zap.Logger, callback func(*Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	if err := setConfigFile(v, configPath); err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file for watching: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))

		config, err := LoadWithOptions(LoadOptions{ConfigPath: configPath, ValidateRequired: true})
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", zap.Error(err))
			return
		}
		callback(config)
	})
	v.WatchConfig()

	return nil
}
