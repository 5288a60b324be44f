package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkatanacio/resumable-downloader/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "segdl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("segdl", pflag.ContinueOnError)
	flags.String("dest", ".", "")
	flags.Int("parallel", 1, "")
	flags.Int("max-faults", 10, "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.DestDir)
	assert.Empty(t, cfg.URLs)
	assert.Equal(t, 4, cfg.Download.ChunkSizeMB)
	assert.Equal(t, 10*time.Second, cfg.Download.StatusCooldown)
	assert.Equal(t, 10*time.Second, cfg.Download.TransportCooldown)
	assert.Equal(t, 5*time.Second, cfg.Download.EarlyCloseCooldown)
	assert.Equal(t, 10, cfg.Download.MaxConsecutiveFaults)
	assert.Equal(t, 5*time.Second, cfg.Download.ProgressInterval)
	assert.Equal(t, 1, cfg.Download.Parallel)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ConnectTimeout)
	assert.Equal(t, 5*time.Minute, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 5, cfg.HTTP.RetryMax)
	assert.Equal(t, 2*time.Second, cfg.HTTP.RetryWaitMin)
	assert.Equal(t, 2*time.Minute, cfg.HTTP.RetryWaitMax)
	assert.Equal(t, "segdl", cfg.HTTP.UserAgent)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
dest_dir: /data/gta
urls:
  - http://wiselab.uwaterloo.ca/OursObjectDet/images.zip.001
  - http://wiselab.uwaterloo.ca/OursObjectDet/images.zip.002
download:
  chunk_size_mb: 8
  status_cooldown: 30s
  max_consecutive_faults: -1
http:
  read_timeout: 10m
  retry_max: 0
logging:
  format: json
`)

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/data/gta", cfg.DestDir)
	assert.Equal(t, []string{
		"http://wiselab.uwaterloo.ca/OursObjectDet/images.zip.001",
		"http://wiselab.uwaterloo.ca/OursObjectDet/images.zip.002",
	}, cfg.URLs)
	assert.Equal(t, 8, cfg.Download.ChunkSizeMB)
	assert.Equal(t, 30*time.Second, cfg.Download.StatusCooldown)
	assert.Equal(t, 10*time.Second, cfg.Download.TransportCooldown, "unset keys keep their default")
	assert.Equal(t, -1, cfg.Download.MaxConsecutiveFaults)
	assert.Equal(t, 10*time.Minute, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 0, cfg.HTTP.RetryMax)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
download:
  parallel: 2
  max_consecutive_faults: 3
logging:
  level: warn
`)
	t.Setenv("SEGDL_DOWNLOAD_PARALLEL", "3")
	t.Setenv("SEGDL_HTTP_USER_AGENT", "gta-fetch")

	cfg, err := config.Load(path, testFlags(t, "--max-faults", "7"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Download.Parallel, "env overrides file")
	assert.Equal(t, 7, cfg.Download.MaxConsecutiveFaults, "flag overrides file")
	assert.Equal(t, "warn", cfg.Logging.Level, "unset flag does not override file")
	assert.Equal(t, "gta-fetch", cfg.HTTP.UserAgent)

	t.Setenv("SEGDL_DOWNLOAD_MAX_CONSECUTIVE_FAULTS", "4")
	cfg, err = config.Load(path, testFlags(t, "--max-faults", "7"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Download.MaxConsecutiveFaults, "flag overrides env")
}

func TestLoad_ExpandsHome(t *testing.T) {
	cfg, err := config.Load("", testFlags(t, "--dest", "~/datasets/gta"))
	require.NoError(t, err)

	want, err := homedir.Expand("~/datasets/gta")
	require.NoError(t, err)
	assert.Equal(t, want, cfg.DestDir)
	assert.NotContains(t, cfg.DestDir, "~")
}

func TestLoad_Failed(t *testing.T) {
	testCases := map[string]struct {
		content string
		errMsg  string
	}{
		"zero chunk size": {
			content: "download:\n  chunk_size_mb: 0\n",
			errMsg:  "download.chunk_size_mb must be positive",
		},
		"zero parallel": {
			content: "download:\n  parallel: 0\n",
			errMsg:  "download.parallel must be at least 1",
		},
		"zero fault limit": {
			content: "download:\n  max_consecutive_faults: 0\n",
			errMsg:  "download.max_consecutive_faults must not be zero",
		},
		"negative retries": {
			content: "http:\n  retry_max: -1\n",
			errMsg:  "http.retry_max must not be negative",
		},
		"inverted retry waits": {
			content: "http:\n  retry_wait_min: 1m\n  retry_wait_max: 1s\n",
			errMsg:  "http.retry_wait_min must be positive",
		},
		"unknown level": {
			content: "logging:\n  level: trace\n",
			errMsg:  "invalid logging.level: trace",
		},
		"unknown format": {
			content: "logging:\n  format: text\n",
			errMsg:  "invalid logging.format: text",
		},
		"bad duration": {
			content: "http:\n  read_timeout: soon\n",
			errMsg:  "failed to unmarshal config",
		},
	}

	for scenario, tc := range testCases {
		t.Run(scenario, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.content), nil)
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestConfig_Options(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
dest_dir: /data
download:
  chunk_size_mb: 2
  parallel: 2
http:
  retry_max: 1
  user_agent: gta-fetch
`), nil)
	require.NoError(t, err)

	opts := cfg.DownloadOptions()
	assert.Equal(t, "/data", opts.DestDir)
	assert.Equal(t, 2*1024*1024, opts.ChunkSize)
	assert.Equal(t, 10, opts.MaxConsecutiveFaults)
	assert.Equal(t, 2, opts.Parallel)
	assert.Equal(t, 5*time.Second, opts.EarlyCloseCooldown)

	topts := cfg.TransportOptions()
	assert.Equal(t, 1, topts.RetryMax)
	assert.Equal(t, "gta-fetch", topts.UserAgent)
	assert.Equal(t, 15*time.Second, topts.ConnectTimeout)
	assert.Equal(t, 4, topts.MaxIdleConnsPerHost)
}
