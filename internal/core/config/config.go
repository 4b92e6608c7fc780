// Package config loads the tile server settings from defaults, an optional
// config file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TILESERVER_PORT.
const EnvPrefix = "TILESERVER"

// Lifecycle drivers.
const (
	DriverLog   = "log"
	DriverKafka = "kafka"
	DriverNone  = "none"
)

type Config struct {
	Port              int    `mapstructure:"port"`
	RootPath          string `mapstructure:"root_path"`
	Host              string `mapstructure:"host"`
	LogLevel          string `mapstructure:"log_level"`
	LogConsole        bool   `mapstructure:"log_console"`
	LogSampleN        int    `mapstructure:"log_sample_n"`
	TemplatesDir      string `mapstructure:"templates_dir"`
	MetadataCacheSize int    `mapstructure:"metadata_cache_size"`

	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	MetricsPath    string `mapstructure:"metrics_path"`

	LifecycleDriver string `mapstructure:"lifecycle_driver"`
	KafkaBrokers    string `mapstructure:"kafka_brokers"`
	KafkaTopic      string `mapstructure:"kafka_topic"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

func Defaults() Config {
	return Config{
		Port:              1886,
		RootPath:          "./tileserver",
		Host:              "localhost",
		LogLevel:          "info",
		MetadataCacheSize: 128,
		MetricsEnabled:    false,
		MetricsAddr:       ":9090",
		MetricsPath:       "/metrics",
		LifecycleDriver:   DriverLog,
		KafkaBrokers:      "localhost:9092",
		KafkaTopic:        "tileserver-lifecycle",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Brokers splits KafkaBrokers on commas.
func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.RootPath) == "" {
		errs = append(errs, errors.New("root_path is empty"))
	}
	switch c.LifecycleDriver {
	case DriverLog, DriverNone:
	case DriverKafka:
		if len(c.Brokers()) == 0 {
			errs = append(errs, errors.New("lifecycle_driver kafka needs kafka_brokers"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lifecycle_driver %q", c.LifecycleDriver))
	}
	if c.MetricsEnabled && !strings.HasPrefix(c.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("metrics_path %q must start with /", c.MetricsPath))
	}
	return errors.Join(errs...)
}

// Load reads defaults, then file when set (yaml, toml or json by
// extension), then TILESERVER_* environment variables. LOG_LEVEL is
// honoured without the prefix too.
func Load(file string) (Config, error) {
	v := viper.New()
	d := Defaults()
	v.SetDefault("port", d.Port)
	v.SetDefault("root_path", d.RootPath)
	v.SetDefault("host", d.Host)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_console", d.LogConsole)
	v.SetDefault("log_sample_n", d.LogSampleN)
	v.SetDefault("templates_dir", d.TemplatesDir)
	v.SetDefault("metadata_cache_size", d.MetadataCacheSize)
	v.SetDefault("metrics_enabled", d.MetricsEnabled)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("metrics_path", d.MetricsPath)
	v.SetDefault("lifecycle_driver", d.LifecycleDriver)
	v.SetDefault("kafka_brokers", d.KafkaBrokers)
	v.SetDefault("kafka_topic", d.KafkaTopic)
	v.SetDefault("read_header_timeout", d.ReadHeaderTimeout)
	v.SetDefault("read_timeout", d.ReadTimeout)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("idle_timeout", d.IdleTimeout)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("log_level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL"); err != nil {
		return Config{}, fmt.Errorf("bind log_level: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LifecycleDriver = strings.ToLower(strings.TrimSpace(cfg.LifecycleDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// FromEnv reads the environment only, falling back to defaults for unset
// or malformed values.
func FromEnv() Config {
	d := Defaults()
	return Config{
		Port:              getint("PORT", d.Port),
		RootPath:          getenv("ROOT_PATH", d.RootPath),
		Host:              getenv("HOST", d.Host),
		LogLevel:          getenv("LOG_LEVEL", getbare("LOG_LEVEL", d.LogLevel)),
		LogConsole:        getbool("LOG_CONSOLE", d.LogConsole),
		LogSampleN:        getint("LOG_SAMPLE_N", d.LogSampleN),
		TemplatesDir:      getenv("TEMPLATES_DIR", d.TemplatesDir),
		MetadataCacheSize: getint("METADATA_CACHE_SIZE", d.MetadataCacheSize),
		MetricsEnabled:    getbool("METRICS_ENABLED", d.MetricsEnabled),
		MetricsAddr:       getenv("METRICS_ADDR", d.MetricsAddr),
		MetricsPath:       getenv("METRICS_PATH", d.MetricsPath),
		LifecycleDriver:   strings.ToLower(getenv("LIFECYCLE_DRIVER", d.LifecycleDriver)),
		KafkaBrokers:      getenv("KAFKA_BROKERS", d.KafkaBrokers),
		KafkaTopic:        getenv("KAFKA_TOPIC", d.KafkaTopic),
		ReadHeaderTimeout: getduration("READ_HEADER_TIMEOUT", d.ReadHeaderTimeout),
		ReadTimeout:       getduration("READ_TIMEOUT", d.ReadTimeout),
		WriteTimeout:      getduration("WRITE_TIMEOUT", d.WriteTimeout),
		IdleTimeout:       getduration("IDLE_TIMEOUT", d.IdleTimeout),
		ShutdownTimeout:   getduration("SHUTDOWN_TIMEOUT", d.ShutdownTimeout),
	}
}

func getbare(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenv(k, def string) string {
	return getbare(EnvPrefix+"_"+k, def)
}

func getint(k string, def int) int {
	if v := getenv(k, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := getenv(k, ""); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := getenv(k, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
