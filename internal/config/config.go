package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultURLHausEndpoint   = "https://urlhaus-api.abuse.ch/v1/tag/"
	DefaultThreatFoxEndpoint = "https://threatfox-api.abuse.ch/api/v1/"
)

// Config represents the complete configuration for a query run
type Config struct {
	// Query
	API            string `yaml:"api" json:"api"`
	Tag            string `yaml:"tag" json:"tag"`
	Reporter       string `yaml:"reporter" json:"reporter"`
	ExcludeOnline  bool   `yaml:"exclude_online" json:"exclude_online"`
	ExcludeOffline bool   `yaml:"exclude_offline" json:"exclude_offline"`
	ExcludeIOC     string `yaml:"exclude_ioc" json:"exclude_ioc"`
	DateFrom       string `yaml:"date_from" json:"date_from"`
	DateTo         string `yaml:"date_to" json:"date_to"`

	// Output
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`

	// Feeds
	URLHausEndpoint   string `yaml:"urlhaus_endpoint" json:"urlhaus_endpoint"`
	ThreatFoxEndpoint string `yaml:"threatfox_endpoint" json:"threatfox_endpoint"`
	AuthKey           string `yaml:"auth_key" json:"auth_key"`
	UA                string `yaml:"ua" json:"ua"`
	TimeoutSec        int    `yaml:"timeout_sec" json:"timeout_sec"`

	// Observability
	Run          string `yaml:"run" json:"run"`
	LogLevel     string `yaml:"log_level" json:"log_level"`
	MetricsFile  string `yaml:"metrics_file" json:"metrics_file"`
	OTELEndpoint string `yaml:"otel_endpoint" json:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure" json:"otel_insecure"`
	OTELService  string `yaml:"otel_service" json:"otel_service"`
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.API == "" {
		c.API = "urlhaus"
	}
	if c.Tag == "" {
		c.Tag = "emotet"
	}
	if c.ExcludeIOC == "" {
		c.ExcludeIOC = "hash"
	}
	if c.URLHausEndpoint == "" {
		c.URLHausEndpoint = DefaultURLHausEndpoint
	}
	if c.ThreatFoxEndpoint == "" {
		c.ThreatFoxEndpoint = DefaultThreatFoxEndpoint
	}
	if c.UA == "" {
		c.UA = "abusech-cli/1.0 (+https://github.com/gustycube/abusech-cli)"
	}
	if c.TimeoutSec == 0 {
		c.TimeoutSec = 30
	}
	if c.Run == "" {
		c.Run = uuid.NewString()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.OTELService == "" {
		c.OTELService = "abusech-cli"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Tag == "" {
		return fmt.Errorf("tag is required")
	}
	if err := validateEndpoint("urlhaus_endpoint", c.URLHausEndpoint); err != nil {
		return err
	}
	if err := validateEndpoint("threatfox_endpoint", c.ThreatFoxEndpoint); err != nil {
		return err
	}
	if c.TimeoutSec < 1 {
		return fmt.Errorf("timeout_sec must be at least 1")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q (use debug, info, warn or error)", c.LogLevel)
	}
	return nil
}

func validateEndpoint(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", name, raw)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// MergeWithFlags merges command-line flags with file configuration.
// Only flags the operator actually set should be present in the map; a
// present reporter or exclude_ioc is applied even when empty.
func (c *Config) MergeWithFlags(flags map[string]interface{}) {
	if v, ok := flags["api"].(string); ok && v != "" {
		c.API = v
	}
	if v, ok := flags["tag"].(string); ok && v != "" {
		c.Tag = v
	}
	if v, ok := flags["reporter"].(string); ok {
		c.Reporter = v
	}
	if v, ok := flags["exclude_online"].(bool); ok {
		c.ExcludeOnline = v
	}
	if v, ok := flags["exclude_offline"].(bool); ok {
		c.ExcludeOffline = v
	}
	if v, ok := flags["exclude_ioc"].(string); ok {
		c.ExcludeIOC = v
	}
	if v, ok := flags["date_from"].(string); ok && v != "" {
		c.DateFrom = v
	}
	if v, ok := flags["date_to"].(string); ok && v != "" {
		c.DateTo = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Format = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output = v
	}
	if v, ok := flags["auth_key"].(string); ok && v != "" {
		c.AuthKey = v
	}
	if v, ok := flags["timeout_sec"].(int); ok {
		c.TimeoutSec = v
	}
	if v, ok := flags["log_level"].(string); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := flags["metrics_file"].(string); ok && v != "" {
		c.MetricsFile = v
	}
	if v, ok := flags["otel_endpoint"].(string); ok && v != "" {
		c.OTELEndpoint = v
	}
	if v, ok := flags["otel_insecure"].(bool); ok {
		c.OTELInsecure = v
	}
	if v, ok := flags["otel_service"].(string); ok && v != "" {
		c.OTELService = v
	}
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("ABUSECH_AUTH_KEY"); v != "" {
		c.AuthKey = v
	}
	if v := os.Getenv("URLHAUS_ENDPOINT"); v != "" {
		c.URLHausEndpoint = v
	}
	if v := os.Getenv("THREATFOX_ENDPOINT"); v != "" {
		c.ThreatFoxEndpoint = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" && c.OTELEndpoint == "" {
		c.OTELEndpoint = v
	}
}
