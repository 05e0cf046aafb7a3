package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete agenthub configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Engine    EngineConfig    `yaml:"engine" env:"ENGINE"`
	Recovery  RecoveryConfig  `yaml:"recovery" env:"RECOVERY"`
	Factory   FactoryConfig   `yaml:"factory" env:"FACTORY"`
	Semstore  SemstoreConfig  `yaml:"semstore" env:"SEMSTORE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Monitor   MonitorConfig   `yaml:"monitor" env:"MONITOR"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP surface (status API, metrics, events).
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// EngineConfig configures workflow execution bounds.
type EngineConfig struct {
	StepTimeout        time.Duration `yaml:"step_timeout" env:"STEP_TIMEOUT"`
	WorkflowTimeout    time.Duration `yaml:"workflow_timeout" env:"WORKFLOW_TIMEOUT"`
	PollInterval       time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	MaxConcurrentSteps int           `yaml:"max_concurrent_steps" env:"MAX_CONCURRENT_STEPS"`
	EventBuffer        int           `yaml:"event_buffer" env:"EVENT_BUFFER"`
}

// RecoveryConfig configures retry and circuit breaker behavior.
type RecoveryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" env:"INITIAL_BACKOFF"`
	MaxBackoff        time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`
	FailureThreshold  int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	FailureWindow     time.Duration `yaml:"failure_window" env:"FAILURE_WINDOW"`
	Cooldown          time.Duration `yaml:"cooldown" env:"COOLDOWN"`
	HalfOpenSuccesses int           `yaml:"half_open_successes" env:"HALF_OPEN_SUCCESSES"`
}

// FactoryConfig configures the agent template factory.
type FactoryConfig struct {
	// CapabilityCacheTTL bounds how long a template's resolved capability
	// set is served from cache before recomputation.
	CapabilityCacheTTL time.Duration `yaml:"capability_cache_ttl" env:"CAPABILITY_CACHE_TTL"`
}

// SemstoreConfig configures the semantic triple store.
type SemstoreConfig struct {
	// Backend selects the store: memory, redis, database.
	Backend string `yaml:"backend" env:"BACKEND"`
	// KeyPrefix namespaces redis keys.
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// Mirror settings for asynchronous fact publication.
	MirrorBufferSize      int     `yaml:"mirror_buffer_size" env:"MIRROR_BUFFER_SIZE"`
	MirrorWritesPerSecond float64 `yaml:"mirror_writes_per_second" env:"MIRROR_WRITES_PER_SECOND"`
	MirrorBurst           int     `yaml:"mirror_burst" env:"MIRROR_BURST"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig configures the relational backend.
type DatabaseConfig struct {
	// Driver is one of sqlite, postgres, mysql.
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
}

// MonitorConfig configures the advisory workflow monitor.
type MonitorConfig struct {
	StuckThreshold       time.Duration `yaml:"stuck_threshold" env:"STUCK_THRESHOLD"`
	ScanInterval         time.Duration `yaml:"scan_interval" env:"SCAN_INTERVAL"`
	FailureWindow        time.Duration `yaml:"failure_window" env:"FAILURE_WINDOW"`
	FailureRateThreshold float64       `yaml:"failure_rate_threshold" env:"FAILURE_RATE_THRESHOLD"`
	MinSamples           int           `yaml:"min_samples" env:"MIN_SAMPLES"`
	AlertBuffer          int           `yaml:"alert_buffer" env:"ALERT_BUFFER"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the OpenTelemetry SDK.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration with the precedence
// defaults -> YAML file -> environment variables.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the AGENTHUB env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTHUB"}
}

// WithConfigPath sets the YAML file path. A missing file is not an error;
// defaults and environment variables still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// setFieldsFromEnv walks the struct and applies PREFIX_SECTION_FIELD
// environment overrides per the env tags.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices only.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad loads the configuration from path and panics on error.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Recovery.MaxAttempts <= 0 {
		errs = append(errs, "recovery max_attempts must be positive")
	}
	if c.Recovery.BackoffMultiplier < 1 {
		errs = append(errs, "recovery backoff_multiplier must be >= 1")
	}
	switch c.Semstore.Backend {
	case "memory", "redis", "database":
	default:
		errs = append(errs, fmt.Sprintf("unknown semstore backend %q", c.Semstore.Backend))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}
	if c.Monitor.FailureRateThreshold < 0 || c.Monitor.FailureRateThreshold > 1 {
		errs = append(errs, "monitor failure_rate_threshold must be within [0, 1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
