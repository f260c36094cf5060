// Package config loads process configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment names the deployment stage.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StorageDynamoDB = "dynamodb"
)

// Messaging drivers.
const (
	MessagingLocal       = "local"
	MessagingEventBridge = "eventbridge"
)

// Config is the complete process configuration.
type Config struct {
	Environment Environment `yaml:"environment" validate:"oneof=development staging production"`
	ServiceName string      `yaml:"serviceName" validate:"required"`

	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Storage   Storage   `yaml:"storage"`
	Messaging Messaging `yaml:"messaging"`
	Websocket Websocket `yaml:"websocket"`
	Reducer   Reducer   `yaml:"reducer"`
	Breaker   Breaker   `yaml:"breaker"`
	Tracing   Tracing   `yaml:"tracing"`
	Metrics   Metrics   `yaml:"metrics"`
	AWS       AWS       `yaml:"aws"`
}

type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"readTimeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"gt=0"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// Addr is the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Logging struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

type Storage struct {
	Driver     string `yaml:"driver" validate:"oneof=memory sqlite dynamodb"`
	SQLitePath string `yaml:"sqlitePath"`
	TableName  string `yaml:"tableName"`
	// IndexName is the GSI used to look up websocket connections by id.
	IndexName string `yaml:"indexName"`
}

type Messaging struct {
	Driver       string        `yaml:"driver" validate:"oneof=local eventbridge"`
	EventBusName string        `yaml:"eventBusName"`
	Source       string        `yaml:"source"`
	MaxRedeliver int           `yaml:"maxRedeliver" validate:"min=0"`
	RetryDelay   time.Duration `yaml:"retryDelay"`
}

type Websocket struct {
	// Endpoint of the API Gateway management API, used by the cloud notifier.
	Endpoint     string        `yaml:"endpoint"`
	PingInterval time.Duration `yaml:"pingInterval" validate:"gt=0"`
	SendBuffer   int           `yaml:"sendBuffer" validate:"min=1"`
}

type Reducer struct {
	MaxAttempts int           `yaml:"maxAttempts" validate:"min=1"`
	BaseDelay   time.Duration `yaml:"baseDelay" validate:"gt=0"`
}

type Breaker struct {
	MaxRequests  uint32        `yaml:"maxRequests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	MinRequests  uint32        `yaml:"minRequests"`
	FailureRatio float64       `yaml:"failureRatio" validate:"gt=0,lte=1"`
}

type Tracing struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate" validate:"gte=0,lte=1"`
}

type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

type AWS struct {
	Region string `yaml:"region"`
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string `yaml:"endpoint"`
}

// Default returns a configuration that runs standalone without any file.
func Default() Config {
	return Config{
		Environment: Development,
		ServiceName: "graphsync",
		Server: Server{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Logging: Logging{Level: "info"},
		Storage: Storage{
			Driver:     StorageMemory,
			SQLitePath: "graphsync.db",
			TableName:  "graphsync",
			IndexName:  "GSI1",
		},
		Messaging: Messaging{
			Driver:       MessagingLocal,
			EventBusName: "graphsync",
			Source:       "graphsync.ingest",
			MaxRedeliver: 5,
			RetryDelay:   100 * time.Millisecond,
		},
		Websocket: Websocket{PingInterval: 54 * time.Second, SendBuffer: 256},
		Reducer:   Reducer{MaxAttempts: 5, BaseDelay: 20 * time.Millisecond},
		Breaker: Breaker{
			MaxRequests:  3,
			Interval:     60 * time.Second,
			Timeout:      30 * time.Second,
			MinRequests:  5,
			FailureRatio: 0.6,
		},
		Tracing: Tracing{SampleRate: 0.1},
		Metrics: Metrics{Enabled: true, Namespace: "graphsync"},
		AWS:     AWS{Region: "us-east-1"},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Environment = Environment(getEnv("ENVIRONMENT", string(cfg.Environment)))
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.Logging.Level = strings.ToLower(getEnv("LOG_LEVEL", cfg.Logging.Level))

	cfg.Storage.Driver = getEnv("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.SQLitePath = getEnv("SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.TableName = getEnv("TABLE_NAME", cfg.Storage.TableName)
	cfg.Storage.IndexName = getEnv("INDEX_NAME", cfg.Storage.IndexName)

	cfg.Messaging.Driver = getEnv("MESSAGING_DRIVER", cfg.Messaging.Driver)
	cfg.Messaging.EventBusName = getEnv("EVENT_BUS_NAME", cfg.Messaging.EventBusName)

	cfg.Websocket.Endpoint = getEnv("WEBSOCKET_ENDPOINT", cfg.Websocket.Endpoint)

	cfg.Reducer.MaxAttempts = getEnvInt("REDUCER_MAX_ATTEMPTS", cfg.Reducer.MaxAttempts)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Metrics.Enabled = getEnvBool("ENABLE_METRICS", cfg.Metrics.Enabled)

	cfg.AWS.Region = getEnv("AWS_REGION", cfg.AWS.Region)
	cfg.AWS.Endpoint = getEnv("AWS_ENDPOINT_URL", cfg.AWS.Endpoint)
}

var validate = validator.New()

// Validate checks field ranges and the driver-specific requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var errs []error
	if c.Storage.Driver == StorageSQLite && c.Storage.SQLitePath == "" {
		errs = append(errs, errors.New("storage.sqlitePath is required for the sqlite driver"))
	}
	if c.Storage.Driver == StorageDynamoDB && c.Storage.TableName == "" {
		errs = append(errs, errors.New("storage.tableName is required for the dynamodb driver"))
	}
	if c.Messaging.Driver == MessagingEventBridge && c.Messaging.EventBusName == "" {
		errs = append(errs, errors.New("messaging.eventBusName is required for the eventbridge driver"))
	}
	if c.Environment == Production && c.Storage.Driver == StorageMemory {
		errs = append(errs, errors.New("memory storage is not allowed in production"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool { return c.Environment == Production }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
