package server

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/bricklayers/pkg/jobs"
	"github.com/matzehuels/bricklayers/pkg/storage"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BRICKLAYERS_"

// Duration is a time.Duration read from TOML as "15m" or "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds server settings. Start from DefaultConfig.
type Config struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	APIPrefix   string   `toml:"api_prefix"`
	CORSOrigins []string `toml:"cors_origins"`
	LogLevel    string   `toml:"log_level"`

	UploadDir         string   `toml:"upload_dir"`
	OutputDir         string   `toml:"output_dir"`
	MaxUploadSize     int64    `toml:"max_upload_size"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	FileRetention     Duration `toml:"file_retention"`
	CleanupInterval   Duration `toml:"cleanup_interval"`

	ProcessingTimeout Duration `toml:"processing_timeout"`
	MaxConcurrentJobs int      `toml:"max_concurrent_jobs"`
	MaxQueuedJobs     int      `toml:"max_queued_jobs"`

	// RedisURL moves job records and the output cache to Redis.
	RedisURL string `toml:"redis_url"`
	// CacheDir enables a file cache of processed outputs when Redis is not used.
	CacheDir string `toml:"cache_dir"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8000,
		APIPrefix:         "/api/v1",
		CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
		LogLevel:          "info",
		UploadDir:         storage.DefaultUploadDir,
		OutputDir:         storage.DefaultOutputDir,
		MaxUploadSize:     storage.DefaultMaxUploadSize,
		AllowedExtensions: slices.Clone(storage.DefaultExtensions),
		FileRetention:     Duration{storage.DefaultRetention},
		CleanupInterval:   Duration{storage.DefaultCleanupInterval},
		ProcessingTimeout: Duration{jobs.DefaultTimeout},
		MaxConcurrentJobs: jobs.DefaultMaxConcurrent,
	}
}

// LoadConfig reads path (if not empty) over the defaults and then applies
// BRICKLAYERS_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if keys := md.Undecoded(); len(keys) > 0 {
			return Config{}, fmt.Errorf("config %s: unknown keys %v", path, keys)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides fields from the environment. Names follow the
// settings of the upload service: PROCESSING_TIMEOUT is in seconds,
// FILE_RETENTION_HOURS in hours and CLEANUP_INTERVAL_MINUTES in minutes.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, set func(int64)) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		set(n)
		return nil
	}

	str("HOST", &c.Host)
	str("LOG_LEVEL", &c.LogLevel)
	str("UPLOAD_DIR", &c.UploadDir)
	str("OUTPUT_DIR", &c.OutputDir)
	str("REDIS_URL", &c.RedisURL)
	str("CACHE_DIR", &c.CacheDir)
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}

	for _, f := range []struct {
		name string
		set  func(int64)
	}{
		{"PORT", func(n int64) { c.Port = int(n) }},
		{"MAX_UPLOAD_SIZE", func(n int64) { c.MaxUploadSize = n }},
		{"PROCESSING_TIMEOUT", func(n int64) { c.ProcessingTimeout.Duration = time.Duration(n) * time.Second }},
		{"MAX_CONCURRENT_JOBS", func(n int64) { c.MaxConcurrentJobs = int(n) }},
		{"MAX_QUEUED_JOBS", func(n int64) { c.MaxQueuedJobs = int(n) }},
		{"FILE_RETENTION_HOURS", func(n int64) { c.FileRetention.Duration = time.Duration(n) * time.Hour }},
		{"CLEANUP_INTERVAL_MINUTES", func(n int64) { c.CleanupInterval.Duration = time.Duration(n) * time.Minute }},
	} {
		if err := num(f.name, f.set); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.MaxUploadSize <= 0:
		return fmt.Errorf("invalid max_upload_size %d", c.MaxUploadSize)
	case c.MaxConcurrentJobs <= 0:
		return fmt.Errorf("invalid max_concurrent_jobs %d", c.MaxConcurrentJobs)
	case c.MaxQueuedJobs < 0:
		return fmt.Errorf("invalid max_queued_jobs %d", c.MaxQueuedJobs)
	case c.ProcessingTimeout.Duration <= 0:
		return fmt.Errorf("invalid processing_timeout %s", c.ProcessingTimeout)
	case c.FileRetention.Duration <= 0:
		return fmt.Errorf("invalid file_retention %s", c.FileRetention)
	case c.CleanupInterval.Duration <= 0:
		return fmt.Errorf("invalid cleanup_interval %s", c.CleanupInterval)
	case !strings.HasPrefix(c.APIPrefix, "/"):
		return fmt.Errorf("invalid api_prefix %q (must start with /)", c.APIPrefix)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Storage returns the storage settings.
func (c Config) Storage() storage.Config {
	return storage.Config{
		UploadDir:     c.UploadDir,
		OutputDir:     c.OutputDir,
		MaxUploadSize: c.MaxUploadSize,
		Extensions:    c.AllowedExtensions,
		Retention:     c.FileRetention.Duration,
	}
}

// Jobs returns the worker pool settings.
func (c Config) Jobs() jobs.Config {
	return jobs.Config{
		MaxConcurrent: c.MaxConcurrentJobs,
		Timeout:       c.ProcessingTimeout.Duration,
		MaxQueued:     c.MaxQueuedJobs,
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
