package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gkatanacio/resumable-downloader/download"
	"github.com/gkatanacio/resumable-downloader/transport"
)

// EnvPrefix is prepended to every environment variable read by Load,
// e.g. SEGDL_DOWNLOAD_PARALLEL for download.parallel.
const EnvPrefix = "SEGDL"

// Config represents the entire application configuration
type Config struct {
	DestDir  string         `mapstructure:"dest_dir"`
	URLs     []string       `mapstructure:"urls"`
	Download DownloadConfig `mapstructure:"download"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DownloadConfig contains the resume loop settings
type DownloadConfig struct {
	ChunkSizeMB          int           `mapstructure:"chunk_size_mb"`
	StatusCooldown       time.Duration `mapstructure:"status_cooldown"`
	TransportCooldown    time.Duration `mapstructure:"transport_cooldown"`
	EarlyCloseCooldown   time.Duration `mapstructure:"early_close_cooldown"`
	MaxConsecutiveFaults int           `mapstructure:"max_consecutive_faults"`
	ProgressInterval     time.Duration `mapstructure:"progress_interval"`
	Parallel             int           `mapstructure:"parallel"`
}

// HTTPConfig contains HTTP client settings
type HTTPConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	RetryMax       int           `mapstructure:"retry_max"`
	RetryWaitMin   time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax   time.Duration `mapstructure:"retry_wait_max"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"dest":          "dest_dir",
	"chunk-size-mb": "download.chunk_size_mb",
	"max-faults":    "download.max_consecutive_faults",
	"parallel":      "download.parallel",
	"retries":       "http.retry_max",
	"read-timeout":  "http.read_timeout",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dest_dir", ".")
	v.SetDefault("urls", []string{})
	v.SetDefault("download.chunk_size_mb", 4)
	v.SetDefault("download.status_cooldown", 10*time.Second)
	v.SetDefault("download.transport_cooldown", 10*time.Second)
	v.SetDefault("download.early_close_cooldown", 5*time.Second)
	v.SetDefault("download.max_consecutive_faults", 10)
	v.SetDefault("download.progress_interval", 5*time.Second)
	v.SetDefault("download.parallel", 1)
	v.SetDefault("http.connect_timeout", 15*time.Second)
	v.SetDefault("http.read_timeout", 5*time.Minute)
	v.SetDefault("http.retry_max", 5)
	v.SetDefault("http.retry_wait_min", 2*time.Second)
	v.SetDefault("http.retry_wait_max", 2*time.Minute)
	v.SetDefault("http.user_agent", "segdl")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load builds the configuration from defaults, an optional YAML file, SEGDL_
// environment variables and the flags in flags that were set, in increasing
// order of precedence. When configPath is empty a segdl.yaml in the working
// directory or in ~/.config/segdl is used if present.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if configPath != "" {
		path, err := homedir.Expand(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("segdl")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.config/segdl")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	destDir, err := homedir.Expand(config.DestDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand dest_dir: %w", err)
	}
	config.DestDir = destDir

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DestDir == "" {
		return fmt.Errorf("dest_dir is required")
	}

	if c.Download.ChunkSizeMB <= 0 {
		return fmt.Errorf("download.chunk_size_mb must be positive")
	}
	if c.Download.StatusCooldown <= 0 || c.Download.TransportCooldown <= 0 || c.Download.EarlyCloseCooldown <= 0 {
		return fmt.Errorf("download cooldowns must be positive")
	}
	if c.Download.MaxConsecutiveFaults == 0 {
		return fmt.Errorf("download.max_consecutive_faults must not be zero, use a negative value to retry forever")
	}
	if c.Download.ProgressInterval <= 0 {
		return fmt.Errorf("download.progress_interval must be positive")
	}
	if c.Download.Parallel < 1 {
		return fmt.Errorf("download.parallel must be at least 1")
	}

	if c.HTTP.ConnectTimeout <= 0 {
		return fmt.Errorf("http.connect_timeout must be positive")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("http.read_timeout must be positive")
	}
	if c.HTTP.RetryMax < 0 {
		return fmt.Errorf("http.retry_max must not be negative")
	}
	if c.HTTP.RetryWaitMin <= 0 || c.HTTP.RetryWaitMax < c.HTTP.RetryWaitMin {
		return fmt.Errorf("http.retry_wait_min must be positive and not above http.retry_wait_max")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// DownloadOptions returns the download service options for c.
func (c *Config) DownloadOptions() download.Options {
	return download.Options{
		DestDir:              c.DestDir,
		ChunkSize:            c.Download.ChunkSizeMB * 1024 * 1024,
		StatusCooldown:       c.Download.StatusCooldown,
		TransportCooldown:    c.Download.TransportCooldown,
		EarlyCloseCooldown:   c.Download.EarlyCloseCooldown,
		MaxConsecutiveFaults: c.Download.MaxConsecutiveFaults,
		ProgressInterval:     c.Download.ProgressInterval,
		Parallel:             c.Download.Parallel,
	}
}

// TransportOptions returns the HTTP transport options for c.
func (c *Config) TransportOptions() transport.Options {
	opts := transport.DefaultOptions()
	opts.ConnectTimeout = c.HTTP.ConnectTimeout
	opts.ReadTimeout = c.HTTP.ReadTimeout
	opts.RetryMax = c.HTTP.RetryMax
	opts.RetryWaitMin = c.HTTP.RetryWaitMin
	opts.RetryWaitMax = c.HTTP.RetryWaitMax
	opts.UserAgent = c.HTTP.UserAgent

	return opts
}
