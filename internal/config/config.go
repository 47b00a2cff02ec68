// Package config loads the server's configuration by layering CLI
// flags over a JSON config file over environment variables over
// built-in defaults, in that order of precedence.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
)

// Config is the fully resolved, immutable snapshot handed to the rest
// of the process once startup validation passes.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	Backend      string `json:"storage_backend"`
	DurablePath  string `json:"durable_path"`
	RemoteBucket string `json:"remote_bucket"`
	RemotePrefix string `json:"remote_prefix"`
	RemoteRegion string `json:"remote_region"`

	ExpirySweepInterval time.Duration `json:"-"`
	ExpirySweepSeconds  int           `json:"expiry_sweep_seconds"`

	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	MetricsAddr string `json:"metrics_addr"`
}

// Defaults returns the built-in baseline configuration.
func Defaults() Config {
	return Config{
		Host:               "127.0.0.1",
		Port:               6379,
		Backend:            "memory",
		RemotePrefix:       "redis/",
		ExpirySweepSeconds: 60,
		LogLevel:           "info",
		MetricsAddr:        "127.0.0.1:9121",
	}
}

// fileLayer is the JSON shape read from the --config file; every field
// is optional so a partial override file is valid.
type fileLayer struct {
	Host                *string `json:"host"`
	Port                *int    `json:"port"`
	StorageBackend      *string `json:"storage_backend"`
	DurablePath         *string `json:"durable_path"`
	RemoteBucket        *string `json:"remote_bucket"`
	RemotePrefix        *string `json:"remote_prefix"`
	RemoteRegion        *string `json:"remote_region"`
	ExpirySweepSeconds  *int    `json:"expiry_sweep_seconds"`
	LogLevel            *string `json:"log_level"`
	LogFile             *string `json:"log_file"`
	MetricsAddr         *string `json:"metrics_addr"`
}

func loadFile(path string) (fileLayer, error) {
	var fl fileLayer
	if path == "" {
		return fl, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fl, errors.Wrap(err, "read config file")
	}
	if err := json.Unmarshal(data, &fl); err != nil {
		return fl, errors.Wrap(err, "parse config file")
	}
	return fl, nil
}

func applyFile(cfg Config, fl fileLayer) Config {
	if fl.Host != nil {
		cfg.Host = *fl.Host
	}
	if fl.Port != nil {
		cfg.Port = *fl.Port
	}
	if fl.StorageBackend != nil {
		cfg.Backend = *fl.StorageBackend
	}
	if fl.DurablePath != nil {
		cfg.DurablePath = *fl.DurablePath
	}
	if fl.RemoteBucket != nil {
		cfg.RemoteBucket = *fl.RemoteBucket
	}
	if fl.RemotePrefix != nil {
		cfg.RemotePrefix = *fl.RemotePrefix
	}
	if fl.RemoteRegion != nil {
		cfg.RemoteRegion = *fl.RemoteRegion
	}
	if fl.ExpirySweepSeconds != nil {
		cfg.ExpirySweepSeconds = *fl.ExpirySweepSeconds
	}
	if fl.LogLevel != nil {
		cfg.LogLevel = *fl.LogLevel
	}
	if fl.LogFile != nil {
		cfg.LogFile = *fl.LogFile
	}
	if fl.MetricsAddr != nil {
		cfg.MetricsAddr = *fl.MetricsAddr
	}
	return cfg
}

// applyEnv overrides cfg with any of the recognized environment
// variables that are set, using cast for permissive string-to-typed
// coercion.
func applyEnv(cfg Config) Config {
	if v, ok := os.LookupEnv("REDIS_HOST"); ok {
		cfg.Host = v
	}
	if v, ok := os.LookupEnv("REDIS_PORT"); ok {
		if p, err := cast.ToIntE(v); err == nil {
			cfg.Port = p
		}
	}
	if v, ok := os.LookupEnv("STORAGE_BACKEND"); ok {
		cfg.Backend = v
	}
	if v, ok := os.LookupEnv("DURABLE_PATH"); ok {
		cfg.DurablePath = v
	}
	if v, ok := os.LookupEnv("REMOTE_BUCKET"); ok {
		cfg.RemoteBucket = v
	}
	if v, ok := os.LookupEnv("REMOTE_PREFIX"); ok {
		cfg.RemotePrefix = v
	}
	if v, ok := os.LookupEnv("AWS_REGION"); ok {
		cfg.RemoteRegion = v
	}
	return cfg
}

// applyFlags overrides cfg with the CLI flags this package reads. Only flags whose
// pflag.Flag.Changed is true override lower layers, so an unset flag
// never masks a file/env value with its zero-value default.
func applyFlags(cfg Config, flags *pflag.FlagSet) Config {
	if flags == nil {
		return cfg
	}
	changedString := func(name string, dst *string) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	changedInt := func(name string, dst *int) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			if v, err := flags.GetInt(name); err == nil {
				*dst = v
			}
		}
	}

	changedString("host", &cfg.Host)
	changedInt("port", &cfg.Port)
	changedString("storage-backend", &cfg.Backend)
	changedString("durable-path", &cfg.DurablePath)
	changedString("remote-bucket", &cfg.RemoteBucket)
	changedString("remote-prefix", &cfg.RemotePrefix)
	changedString("remote-region", &cfg.RemoteRegion)
	changedInt("expiry-sweep-interval", &cfg.ExpirySweepSeconds)
	changedString("log-level", &cfg.LogLevel)
	changedString("log-file", &cfg.LogFile)
	changedString("metrics-addr", &cfg.MetricsAddr)

	return cfg
}

// Load resolves the final configuration: defaults, then env, then the
// JSON file at configPath (if non-empty), then any explicitly-set CLI
// flags in flags.
func Load(configPath string, flags *pflag.FlagSet) (Config, error) {
	cfg := Defaults()
	cfg = applyEnv(cfg)

	fl, err := loadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg = applyFile(cfg, fl)
	cfg = applyFlags(cfg, flags)

	cfg.ExpirySweepInterval = time.Duration(cfg.ExpirySweepSeconds) * time.Second

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate enforces backend-specific required fields, the same rule a
// CLI-level check for the selected storage backend enforces before a
// server instance is ever constructed.
func validate(cfg Config) error {
	switch cfg.Backend {
	case "durable":
		if cfg.DurablePath == "" {
			return errors.New("storage backend \"durable\" requires durable_path/--durable-path/DURABLE_PATH")
		}
	case "remote":
		if cfg.RemoteBucket == "" {
			return errors.New("storage backend \"remote\" requires remote_bucket/--remote-bucket/REMOTE_BUCKET")
		}
	case "memory", "":
	default:
		return errors.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return nil
}
