// Package config resolves cargohold configuration from a YAML file,
// CARGOHOLD_* environment variables, and defaults, in that order of
// precedence. Size fields accept human-readable strings ("1.9GB"); the
// resolved values are plain Go types handed to constructors, never read
// back from process-wide state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/viper"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
)

// Config is the fully resolved configuration.
type Config struct {
	// Source is the directory to protect.
	Source string

	// Staging is where archive parts are built before upload. Empty
	// means a directory under the OS temp dir.
	Staging string

	// Catalog is the path of the catalog JSON document.
	Catalog string

	Archive  ArchiveConfig
	Transfer TransferConfig
	S3       S3Config
	Log      LogConfig
	Watch    WatchConfig
}

// ArchiveConfig controls packing.
type ArchiveConfig struct {
	// BaseName prefixes part names: {BaseName}_{NNN}.zip.
	BaseName string

	// Ceiling is the per-part size ceiling in bytes. Zero means the
	// packer default.
	Ceiling int64

	// Workers is the number of parallel compression workers. Zero means
	// one per CPU.
	Workers int
}

// TransferConfig controls the orchestrator and backend selection.
type TransferConfig struct {
	Workers        int
	RetryBudget    int
	RetryBase      time.Duration
	AttemptTimeout time.Duration
	Throttle       time.Duration

	SimpleEnabled  bool
	ChunkedEnabled bool
	ForceSimple    bool
	ForceChunked   bool

	// SimpleLimit, ChunkedLimit, and ChunkSize are byte counts; zero
	// means the backend default.
	SimpleLimit  int64
	ChunkedLimit int64
	ChunkSize    int64
}

// S3Config locates the bucket and credentials.
type S3Config struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	SessionToken   string
	ForcePathStyle bool
	Timeout        time.Duration

	// MaxRetries caps SDK-level request retries. The orchestrator owns
	// retry behavior, so this defaults to 1 (no SDK retries).
	MaxRetries int
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	// Debounce is how long a path must stay quiet before it is
	// considered changed.
	Debounce time.Duration

	// StabilityPoll and StabilityChecks define the stable-size wait: a
	// file is ready once its size is unchanged across this many polls.
	StabilityPoll   time.Duration
	StabilityChecks int

	// IgnoreSuffixes extends the built-in in-progress artifact suffixes.
	IgnoreSuffixes []string
}

// Load resolves configuration. An explicit path (or CARGOHOLD_CONFIG)
// names the config file directly and must exist; otherwise cargohold.yaml
// is searched for in ".", "$HOME/.cargohold", and "/etc/cargohold", and a
// missing file simply means defaults plus environment.
func Load(explicit string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if explicit == "" {
		explicit = os.Getenv("CARGOHOLD_CONFIG")
	}
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.cargohold")
		v.AddConfigPath("/etc/cargohold")
		v.SetConfigName("cargohold")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CARGOHOLD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, cargoerrors.New("config", err)
		}
	}

	return resolve(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source", "")
	v.SetDefault("staging", "")
	v.SetDefault("catalog", "")

	v.SetDefault("archive.base_name", "backup")
	v.SetDefault("archive.ceiling", "")
	v.SetDefault("archive.workers", 0)

	v.SetDefault("transfer.workers", 3)
	v.SetDefault("transfer.retry_budget", 3)
	v.SetDefault("transfer.retry_base", "500ms")
	v.SetDefault("transfer.attempt_timeout", "5m")
	v.SetDefault("transfer.throttle", "0s")
	v.SetDefault("transfer.simple_enabled", true)
	v.SetDefault("transfer.chunked_enabled", true)
	v.SetDefault("transfer.force_simple", false)
	v.SetDefault("transfer.force_chunked", false)
	v.SetDefault("transfer.simple_limit", "")
	v.SetDefault("transfer.chunked_limit", "")
	v.SetDefault("transfer.chunk_size", "")

	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "cargohold")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.session_token", "")
	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.timeout", "0s")
	v.SetDefault("s3.max_retries", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("watch.debounce", "1s")
	v.SetDefault("watch.stability_poll", "500ms")
	v.SetDefault("watch.stability_checks", 3)
	v.SetDefault("watch.ignore_suffixes", []string{})
}

func resolve(v *viper.Viper) (*Config, error) {
	ceiling, err := sizeFromKey(v, "archive.ceiling")
	if err != nil {
		return nil, err
	}
	simpleLimit, err := sizeFromKey(v, "transfer.simple_limit")
	if err != nil {
		return nil, err
	}
	chunkedLimit, err := sizeFromKey(v, "transfer.chunked_limit")
	if err != nil {
		return nil, err
	}
	chunkSize, err := sizeFromKey(v, "transfer.chunk_size")
	if err != nil {
		return nil, err
	}

	catalogPath := v.GetString("catalog")
	if catalogPath == "" {
		catalogPath = defaultCatalogPath()
	}

	cfg := &Config{
		Source:  v.GetString("source"),
		Staging: v.GetString("staging"),
		Catalog: catalogPath,
		Archive: ArchiveConfig{
			BaseName: v.GetString("archive.base_name"),
			Ceiling:  ceiling,
			Workers:  v.GetInt("archive.workers"),
		},
		Transfer: TransferConfig{
			Workers:        v.GetInt("transfer.workers"),
			RetryBudget:    v.GetInt("transfer.retry_budget"),
			RetryBase:      v.GetDuration("transfer.retry_base"),
			AttemptTimeout: v.GetDuration("transfer.attempt_timeout"),
			Throttle:       v.GetDuration("transfer.throttle"),
			SimpleEnabled:  v.GetBool("transfer.simple_enabled"),
			ChunkedEnabled: v.GetBool("transfer.chunked_enabled"),
			ForceSimple:    v.GetBool("transfer.force_simple"),
			ForceChunked:   v.GetBool("transfer.force_chunked"),
			SimpleLimit:    simpleLimit,
			ChunkedLimit:   chunkedLimit,
			ChunkSize:      chunkSize,
		},
		S3: S3Config{
			Bucket:         v.GetString("s3.bucket"),
			Prefix:         v.GetString("s3.prefix"),
			Region:         v.GetString("s3.region"),
			Endpoint:       v.GetString("s3.endpoint"),
			AccessKey:      v.GetString("s3.access_key"),
			SecretKey:      v.GetString("s3.secret_key"),
			SessionToken:   v.GetString("s3.session_token"),
			ForcePathStyle: v.GetBool("s3.force_path_style"),
			Timeout:        v.GetDuration("s3.timeout"),
			MaxRetries:     v.GetInt("s3.max_retries"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
		},
		Watch: WatchConfig{
			Debounce:        v.GetDuration("watch.debounce"),
			StabilityPoll:   v.GetDuration("watch.stability_poll"),
			StabilityChecks: v.GetInt("watch.stability_checks"),
			IgnoreSuffixes:  v.GetStringSlice("watch.ignore_suffixes"),
		},
	}
	return cfg, nil
}

// sizeFromKey parses a byte count that may be a plain integer or a
// human-readable SI size string such as "1.9GB". Empty means zero, which
// callers treat as "use the built-in default".
func sizeFromKey(v *viper.Viper, key string) (int64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	size, err := units.FromHumanSize(raw)
	if err != nil {
		return 0, cargoerrors.New("config", fmt.Errorf("parsing %s: %w", key, err))
	}
	return size, nil
}

func defaultCatalogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "cargohold-catalog.json"
	}
	return filepath.Join(home, ".cargohold", "catalog.json")
}
