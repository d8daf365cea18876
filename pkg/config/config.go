// Package config provides configuration management for dump analysis runs.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/viper"

	apperrors "github.com/dump-sleuth/pkg/errors"
	"github.com/dump-sleuth/pkg/model"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// DUMPSLEUTH_ANALYSIS_MAX_WORKERS.
const EnvPrefix = "DUMPSLEUTH"

// Config holds all configuration for the application.
type Config struct {
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Modules  ModulesConfig  `mapstructure:"modules"`
	Output   OutputConfig   `mapstructure:"output"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

// AnalysisConfig holds extraction and access settings. Sizes are
// human-readable strings such as "500MB" or "2GB".
type AnalysisConfig struct {
	MinStringLength      int      `mapstructure:"min_string_length"`
	MaxStringLength      int      `mapstructure:"max_string_length"`
	MaxFileSize          string   `mapstructure:"max_file_size"`
	UseMmap              bool     `mapstructure:"use_mmap"`
	MmapThreshold        string   `mapstructure:"mmap_threshold"`
	MaxScanBytes         string   `mapstructure:"max_scan_bytes"`
	ChunkSize            string   `mapstructure:"chunk_size"`
	Parallel             bool     `mapstructure:"parallel"`
	MaxWorkers           int      `mapstructure:"max_workers"`
	ModuleTimeout        string   `mapstructure:"module_timeout"`
	RecoveryMode         bool     `mapstructure:"recovery_mode"`
	CategoryCap          int      `mapstructure:"category_cap"`
	SignalCap            int      `mapstructure:"signal_cap"`
	MaxProcessCandidates int      `mapstructure:"max_process_candidates"`
	MaxDistinctStrings   int      `mapstructure:"max_distinct_strings"`
	ServiceNames         []string `mapstructure:"service_names"`
	IncludeCategories    []string `mapstructure:"include_categories"`
	ExcludeCategories    []string `mapstructure:"exclude_categories"`
}

// ModulesConfig selects the extraction modules of a run.
type ModulesConfig struct {
	Enabled []string `mapstructure:"enabled"`
}

// OutputConfig controls report handling after a run.
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	Compress string `mapstructure:"compress"` // none, gzip or zstd
	Upload   bool   `mapstructure:"upload"`
	Persist  bool   `mapstructure:"persist"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres or mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
	LocalPath string `mapstructure:"local_path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// Sizes is the byte form of the analysis size strings.
type Sizes struct {
	MaxFileSize   int64
	MmapThreshold int64
	MaxScanBytes  int64
	ChunkSize     int64
}

// Load reads configuration from the specified file path. An empty path
// searches the standard locations; a missing file falls back to defaults.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("dumpsleuth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/dumpsleuth")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, apperrors.Config("failed to read config file", err)
		}
	}

	return decode(v)
}

// LoadFromReader loads configuration from raw bytes (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, apperrors.Config("failed to read config", err)
	}
	return decode(v)
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Config("failed to unmarshal config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultModules is the module set enabled by default.
var DefaultModules = []string{"strings", "patterns", "network", "registry", "processes", "structure", "secrets"}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("analysis.min_string_length", model.DefaultMinStringLength)
	v.SetDefault("analysis.max_string_length", model.DefaultMaxStringLength)
	v.SetDefault("analysis.max_file_size", "2GB")
	v.SetDefault("analysis.use_mmap", true)
	v.SetDefault("analysis.mmap_threshold", "100MB")
	v.SetDefault("analysis.max_scan_bytes", "10MB")
	v.SetDefault("analysis.chunk_size", "1MB")
	v.SetDefault("analysis.parallel", true)
	v.SetDefault("analysis.max_workers", 4)
	v.SetDefault("analysis.module_timeout", "5m")
	v.SetDefault("analysis.recovery_mode", false)
	v.SetDefault("analysis.category_cap", model.DefaultCategoryCap)
	v.SetDefault("analysis.signal_cap", model.DefaultSignalCap)
	v.SetDefault("analysis.max_process_candidates", model.DefaultMaxProcessCandidates)
	v.SetDefault("analysis.max_distinct_strings", model.DefaultMaxDistinctStrings)
	v.SetDefault("analysis.service_names", []string{})
	v.SetDefault("analysis.include_categories", []string{})
	v.SetDefault("analysis.exclude_categories", []string{})

	v.SetDefault("modules.enabled", DefaultModules)

	v.SetDefault("output.dir", "reports")
	v.SetDefault("output.compress", "none")
	v.SetDefault("output.upload", false)
	v.SetDefault("output.persist", false)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.database", "dumpsleuth.db")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate validates the configuration. Every failure is a ConfigurationError.
func (c *Config) Validate() error {
	if _, err := c.Analysis.Sizes(); err != nil {
		return err
	}
	if _, err := c.Analysis.Timeout(); err != nil {
		return err
	}
	if c.Analysis.MinStringLength < 1 {
		return apperrors.Config(fmt.Sprintf("min_string_length must be at least 1, got %d", c.Analysis.MinStringLength), nil)
	}
	if c.Analysis.MaxWorkers < 1 {
		return apperrors.Config(fmt.Sprintf("max_workers must be at least 1, got %d", c.Analysis.MaxWorkers), nil)
	}
	if len(c.Modules.Enabled) == 0 {
		return apperrors.Config("at least one module must be enabled", nil)
	}

	switch c.Output.Compress {
	case "", "none", "gzip", "zstd":
	default:
		return apperrors.Config(fmt.Sprintf("unsupported compression: %s", c.Output.Compress), nil)
	}

	switch c.Database.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return apperrors.Config(fmt.Sprintf("unsupported database type: %s", c.Database.Type), nil)
	}
	if c.Database.Type != "sqlite" && c.Database.Host == "" {
		return apperrors.Config("database host is required", nil)
	}

	return nil
}

// Sizes parses the size strings of the analysis section.
func (a AnalysisConfig) Sizes() (Sizes, error) {
	var s Sizes
	fields := []struct {
		key string
		raw string
		dst *int64
	}{
		{"max_file_size", a.MaxFileSize, &s.MaxFileSize},
		{"mmap_threshold", a.MmapThreshold, &s.MmapThreshold},
		{"max_scan_bytes", a.MaxScanBytes, &s.MaxScanBytes},
		{"chunk_size", a.ChunkSize, &s.ChunkSize},
	}
	for _, f := range fields {
		n, err := ParseSize(f.raw)
		if err != nil {
			return Sizes{}, apperrors.Config(fmt.Sprintf("invalid %s %q", f.key, f.raw), err)
		}
		*f.dst = n
	}
	if s.ChunkSize < 4096 {
		return Sizes{}, apperrors.Config(fmt.Sprintf("chunk_size must be at least 4KB, got %d", s.ChunkSize), nil)
	}
	return s, nil
}

// Timeout parses module_timeout. An empty string or "0" disables it.
func (a AnalysisConfig) Timeout() (time.Duration, error) {
	if a.ModuleTimeout == "" || a.ModuleTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.ModuleTimeout)
	if err != nil || d < 0 {
		return 0, apperrors.Config(fmt.Sprintf("invalid module_timeout %q", a.ModuleTimeout), err)
	}
	return d, nil
}

// ParseSize converts "500MB", "2GB" or "1048576" to bytes using binary
// multiples.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return n, nil
}

// ExtractionContext builds the immutable per-run snapshot handed to modules.
func (c *Config) ExtractionContext() (*model.ExtractionContext, error) {
	sizes, err := c.Analysis.Sizes()
	if err != nil {
		return nil, err
	}
	timeout, err := c.Analysis.Timeout()
	if err != nil {
		return nil, err
	}
	return model.NewExtractionContext(model.ExtractionOptions{
		MinStringLength:      c.Analysis.MinStringLength,
		MaxStringLength:      c.Analysis.MaxStringLength,
		MaxScanBytes:         sizes.MaxScanBytes,
		ChunkSize:            sizes.ChunkSize,
		CategoryCap:          c.Analysis.CategoryCap,
		SignalCap:            c.Analysis.SignalCap,
		MaxProcessCandidates: c.Analysis.MaxProcessCandidates,
		MaxDistinctStrings:   c.Analysis.MaxDistinctStrings,
		IncludeCategories:    c.Analysis.IncludeCategories,
		ExcludeCategories:    c.Analysis.ExcludeCategories,
		ModuleTimeout:        timeout,
	}), nil
}

// EnsureOutputDir creates the report directory if it doesn't exist.
func (c *Config) EnsureOutputDir() error {
	if c.Output.Dir == "" {
		return nil
	}
	return os.MkdirAll(c.Output.Dir, 0755)
}
