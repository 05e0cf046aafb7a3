package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Engine:    DefaultEngineConfig(),
		Recovery:  DefaultRecoveryConfig(),
		Factory:   DefaultFactoryConfig(),
		Semstore:  DefaultSemstoreConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Monitor:   DefaultMonitorConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default HTTP surface configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultEngineConfig returns the default workflow execution bounds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		StepTimeout:        30 * time.Second,
		WorkflowTimeout:    5 * time.Minute,
		PollInterval:       200 * time.Millisecond,
		MaxConcurrentSteps: 16,
		EventBuffer:        256,
	}
}

// DefaultRecoveryConfig returns the default retry and breaker settings.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		FailureThreshold:  5,
		FailureWindow:     time.Minute,
		Cooldown:          30 * time.Second,
		HalfOpenSuccesses: 2,
	}
}

// DefaultFactoryConfig returns the default factory settings.
func DefaultFactoryConfig() FactoryConfig {
	return FactoryConfig{
		CapabilityCacheTTL: 5 * time.Minute,
	}
}

// DefaultSemstoreConfig returns the default semantic store settings.
func DefaultSemstoreConfig() SemstoreConfig {
	return SemstoreConfig{
		Backend:               "memory",
		KeyPrefix:             "agenthub",
		MirrorBufferSize:      1024,
		MirrorWritesPerSecond: 200,
		MirrorBurst:           50,
	}
}

// DefaultRedisConfig returns the default redis settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig returns the default database settings. The sqlite
// driver with an in-memory DSN needs no external service.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:  "sqlite",
		Name:    ":memory:",
		SSLMode: "disable",
		Host:    "localhost",
		Port:    5432,
	}
}

// DefaultMonitorConfig returns the default monitor thresholds.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		StuckThreshold:       time.Minute,
		ScanInterval:         5 * time.Second,
		FailureWindow:        time.Minute,
		FailureRateThreshold: 0.5,
		MinSamples:           5,
		AlertBuffer:          64,
	}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agenthub",
		SampleRate:   0.1,
	}
}
