// Package config loads resolver settings from environment variables and an
// optional .env file using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kloudmate/header-resolver/detector"
)

// Config holds all application configuration.
// Priority: flags (applied by the caller) > environment > .env file > defaults.
type Config struct {
	RulesSource    string        // KM_RULES_SOURCE: file path, configmap://ns/name#key or builtin:reference
	HeaderSuffixes []string      // KM_HEADER_SUFFIXES: comma separated, files without extension always qualify
	ExcludeGlobs   []string      // KM_EXCLUDE_GLOBS: comma separated doublestar patterns
	MaxFileBytes   int           // KM_MAX_FILE_BYTES: classify at most this many leading bytes (0 = all)
	CacheTTL       time.Duration // KM_CACHE_TTL_MINUTES
	Workers        int           // KM_WORKERS: parallel files during a workspace scan (0 = GOMAXPROCS)
	RPCAddr        string        // KM_CFG_UPDATER_RPC_ADDR: updater to push resolutions to / rpc listen address
	HTTPAddr       string        // KM_HTTP_ADDR
	BatchSize      int           // KM_QUEUE_SIZE: resolutions per pushed batch
	RateLimit      int           // KM_RATE_LIMIT_PER_MINUTE: per-IP limit on /v1 (0 = off)
	LogLevel       string        // KM_LOG_LEVEL
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env") // Optional; silently ignored if file doesn't exist
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	setConfigDefaults(v)

	return &Config{
		RulesSource:    v.GetString("KM_RULES_SOURCE"),
		HeaderSuffixes: splitList(v.GetString("KM_HEADER_SUFFIXES")),
		ExcludeGlobs:   splitList(v.GetString("KM_EXCLUDE_GLOBS")),
		MaxFileBytes:   v.GetInt("KM_MAX_FILE_BYTES"),
		CacheTTL:       time.Duration(v.GetInt("KM_CACHE_TTL_MINUTES")) * time.Minute,
		Workers:        v.GetInt("KM_WORKERS"),
		RPCAddr:        v.GetString("KM_CFG_UPDATER_RPC_ADDR"),
		HTTPAddr:       v.GetString("KM_HTTP_ADDR"),
		BatchSize:      v.GetInt("KM_QUEUE_SIZE"),
		RateLimit:      v.GetInt("KM_RATE_LIMIT_PER_MINUTE"),
		LogLevel:       v.GetString("KM_LOG_LEVEL"),
	}, nil
}

// setConfigDefaults sets default values for all configuration options.
func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("KM_RULES_SOURCE", detector.ReferenceSource)
	v.SetDefault("KM_HEADER_SUFFIXES", ".h")
	v.SetDefault("KM_EXCLUDE_GLOBS", "")
	v.SetDefault("KM_MAX_FILE_BYTES", 1<<20)
	v.SetDefault("KM_CACHE_TTL_MINUTES", 60)
	v.SetDefault("KM_WORKERS", 0)
	v.SetDefault("KM_CFG_UPDATER_RPC_ADDR", "")
	v.SetDefault("KM_HTTP_ADDR", ":8080")
	v.SetDefault("KM_QUEUE_SIZE", 5)
	v.SetDefault("KM_RATE_LIMIT_PER_MINUTE", 600)
	v.SetDefault("KM_LOG_LEVEL", "info")
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ValidationError represents a configuration validation error with details about what failed.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed [%s]: %s", e.Field, e.Message)
}

// Validate checks value ranges. It returns the first problem found.
func (c *Config) Validate() error {
	if c.MaxFileBytes < 0 {
		return ValidationError{Field: "KM_MAX_FILE_BYTES", Message: "must not be negative"}
	}
	if c.CacheTTL < 0 {
		return ValidationError{Field: "KM_CACHE_TTL_MINUTES", Message: "must not be negative"}
	}
	if c.Workers < 0 {
		return ValidationError{Field: "KM_WORKERS", Message: "must not be negative"}
	}
	if c.BatchSize <= 0 {
		return ValidationError{Field: "KM_QUEUE_SIZE", Message: "must be at least 1"}
	}
	if c.RateLimit < 0 {
		return ValidationError{Field: "KM_RATE_LIMIT_PER_MINUTE", Message: "must not be negative"}
	}
	for _, suffix := range c.HeaderSuffixes {
		if !strings.HasPrefix(suffix, ".") {
			return ValidationError{Field: "KM_HEADER_SUFFIXES", Message: fmt.Sprintf("suffix %q must start with '.'", suffix)}
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return ValidationError{Field: "KM_LOG_LEVEL", Message: fmt.Sprintf("must be debug, info, warn or error, got %q", c.LogLevel)}
	}
	return nil
}

// EligibilityFilter builds the document filter described by the configuration.
func (c *Config) EligibilityFilter() detector.EligibilityFilter {
	return detector.EligibilityFilter{
		Suffixes: append([]string(nil), c.HeaderSuffixes...),
		Exclude:  append([]string(nil), c.ExcludeGlobs...),
	}
}

// ResolverOptions maps the configuration onto resolver options.
func (c *Config) ResolverOptions(source string) detector.Options {
	return detector.Options{
		Filter:       c.EligibilityFilter(),
		CacheTTL:     c.CacheTTL,
		MaxTextBytes: c.MaxFileBytes,
		ServerAddr:   c.RPCAddr,
		BatchSize:    c.BatchSize,
		Source:       source,
	}
}
