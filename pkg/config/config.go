// Package config загружает конфигурацию datacore.
//
// Порядок источников, каждый следующий перекрывает предыдущий:
//
//  1. значения по умолчанию (Default);
//  2. YAML файл (-config);
//  3. .env файл (переменные, которых еще нет в окружении);
//  4. переменные окружения (DB_TYPE, DB_DSN, LOG_LEVEL, ...).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ruslano69/datacore/pkg/adapters"
	"github.com/ruslano69/datacore/pkg/audit"
	"github.com/ruslano69/datacore/pkg/brokers"
	"github.com/ruslano69/datacore/pkg/connection"
	"github.com/ruslano69/datacore/pkg/logging"
	"github.com/ruslano69/datacore/pkg/resilience"
	"github.com/ruslano69/datacore/pkg/retry"
)

// Config - корневая структура конфигурации
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Connection ConnectionConfig `yaml:"connection"`
	Audit      AuditConfig      `yaml:"audit"`
	Server     ServerConfig     `yaml:"server"`
	Logging    logging.Config   `yaml:"logging"`
}

// DatabaseConfig - параметры подключения к СУБД
type DatabaseConfig struct {
	Type        string        `yaml:"type" env:"DB_TYPE"` // sqlite, postgres, mssql, mysql, libsql
	DSN         string        `yaml:"dsn,omitempty" env:"DB_DSN"`
	Host        string        `yaml:"host,omitempty" env:"DB_HOST"`
	Port        int           `yaml:"port,omitempty" env:"DB_PORT"`
	Database    string        `yaml:"database,omitempty" env:"DB_NAME"`
	File        string        `yaml:"file,omitempty" env:"DB_FILE"` // SQLite
	User        string        `yaml:"user,omitempty" env:"DB_USER"`
	Password    string        `yaml:"password,omitempty" env:"DB_PASSWORD"`
	Schema      string        `yaml:"schema,omitempty" env:"DB_SCHEMA"`
	SSLMode     string        `yaml:"sslmode,omitempty" env:"DB_SSLMODE"`
	WindowsAuth bool          `yaml:"windows_auth,omitempty" env:"DB_WINDOWS_AUTH"`
	AuthToken   string        `yaml:"auth_token,omitempty" env:"DB_AUTH_TOKEN"` // libSQL / Turso
	MaxConns    int           `yaml:"max_conns,omitempty" env:"DB_MAX_CONNS"`
	MinConns    int           `yaml:"min_conns,omitempty" env:"DB_MIN_CONNS"`
	IdleTimeout time.Duration `yaml:"idle_timeout,omitempty" env:"DB_IDLE_TIMEOUT"`
	Debug       bool          `yaml:"debug,omitempty" env:"DB_DEBUG"`
}

// ConnectionConfig - ping loop, reconnect loop и таймауты запросов
type ConnectionConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval" env:"CONN_PING_INTERVAL"`
	PingTimeout    time.Duration `yaml:"ping_timeout" env:"CONN_PING_TIMEOUT"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONN_CONNECT_TIMEOUT"`
	QueryTimeout   time.Duration `yaml:"query_timeout" env:"CONN_QUERY_TIMEOUT"`
	Reconnect      retry.Config  `yaml:"reconnect"`
}

// AuditConfig - журнал мутаций и его appenders
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled" env:"AUDIT_ENABLED"`
	Level      string `yaml:"level" env:"AUDIT_LEVEL"` // minimal, standard, full
	Async      bool   `yaml:"async" env:"AUDIT_ASYNC"`
	BufferSize int    `yaml:"buffer_size" env:"AUDIT_BUFFER_SIZE"`

	// DefaultUser - changed_by для записей без пользователя; пусто - пользователь ОС
	DefaultUser string `yaml:"default_user" env:"AUDIT_USER"`

	// LogTable - таблица для строк CreateLog; пустая строка отключает SQL appender
	LogTable string `yaml:"log_table" env:"AUDIT_LOG_TABLE"`

	File    FileAuditConfig   `yaml:"file"`
	Console bool              `yaml:"console" env:"AUDIT_CONSOLE"`
	Redis   RedisAuditConfig  `yaml:"redis"`
	Broker  BrokerAuditConfig `yaml:"broker"`
}

// FileAuditConfig - JSON lines с ротацией
type FileAuditConfig struct {
	Path       string `yaml:"path" env:"AUDIT_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"AUDIT_FILE_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"AUDIT_FILE_MAX_BACKUPS"`
	Compress   bool   `yaml:"compress" env:"AUDIT_FILE_COMPRESS"`
}

// RedisAuditConfig - история и pub/sub в Redis
type RedisAuditConfig struct {
	Enabled  bool          `yaml:"enabled" env:"AUDIT_REDIS_ENABLED"`
	Address  string        `yaml:"address" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	Prefix   string        `yaml:"prefix"`
	MaxLen   int64         `yaml:"max_len"`
	TTL      time.Duration `yaml:"ttl"`
}

// BrokerAuditConfig - публикация в RabbitMQ/Kafka с повторами и DLQ
type BrokerAuditConfig struct {
	Enabled    bool              `yaml:"enabled" env:"AUDIT_BROKER_ENABLED"`
	Broker     brokers.Config    `yaml:",inline"`
	Retry      retry.Config      `yaml:"retry"`
	Breaker    resilience.Config `yaml:"breaker"`
	DLQFile    string            `yaml:"dlq_file" env:"AUDIT_DLQ_FILE"`
	DLQMaxSize int               `yaml:"dlq_max_size"`
}

// ServerConfig - служебный HTTP (health, metrics)
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"SERVER_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// Default - конфигурация по умолчанию: локальный SQLite файл
func Default() *Config {
	opts := connection.DefaultOptions()
	breaker := resilience.DefaultConfig()
	breaker.Enabled = true
	return &Config{
		Database: DatabaseConfig{
			Type: adapters.TypeSQLite,
			File: "datacore.db",
		},
		Connection: ConnectionConfig{
			PingInterval:   opts.PingInterval,
			PingTimeout:    opts.PingTimeout,
			ConnectTimeout: opts.ConnectTimeout,
			QueryTimeout:   opts.QueryTimeout,
			Reconnect:      opts.Reconnect,
		},
		Audit: AuditConfig{
			Enabled:    true,
			Level:      "standard",
			Async:      true,
			BufferSize: 1000,
			LogTable:   "logs",
			File: FileAuditConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				Compress:   true,
			},
			Broker: BrokerAuditConfig{
				Retry:      retry.PublishConfig(),
				Breaker:    breaker,
				DLQMaxSize: 10000,
			},
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load собирает конфигурацию из файла, .env и окружения
// path и envFiles могут быть пустыми; отсутствующий .env не ошибка.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	// StrictDecode без единой заданной переменной отвечает ErrInvalidTarget
	if err := envdecode.StrictDecode(cfg); err != nil && !noEnvSet(err) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	cfg.Database.Type = adapters.NormalizeType(cfg.Database.Type)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func noEnvSet(err error) bool {
	return errors.Is(err, envdecode.ErrInvalidTarget) || errors.Is(err, envdecode.ErrNoTargetFieldsAreSet)
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	switch adapters.NormalizeType(c.Database.Type) {
	case adapters.TypeSQLite, adapters.TypePostgres, adapters.TypeMSSQL, adapters.TypeMySQL, adapters.TypeLibSQL:
	default:
		return fmt.Errorf("config: unsupported database type %q", c.Database.Type)
	}
	if c.Database.BuildDSN() == "" {
		return fmt.Errorf("config: database %s: dsn or connection fields are required", c.Database.Type)
	}

	if err := c.Connection.Reconnect.Validate(); err != nil {
		return fmt.Errorf("config: connection.reconnect: %w", err)
	}

	if _, err := audit.ParseLevel(c.Audit.Level); err != nil {
		return fmt.Errorf("config: audit: %w", err)
	}
	if c.Audit.Redis.Enabled && c.Audit.Redis.Address == "" {
		return fmt.Errorf("config: audit.redis.address is required")
	}
	if c.Audit.Broker.Enabled {
		if c.Audit.Broker.Broker.Type == "" {
			return fmt.Errorf("config: audit.broker.type is required")
		}
		if err := c.Audit.Broker.Retry.Validate(); err != nil {
			return fmt.Errorf("config: audit.broker.retry: %w", err)
		}
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	return nil
}

// ConnectionOptions - параметры для connection.Manager
func (c *Config) ConnectionOptions() connection.Options {
	return connection.Options{
		PingInterval:   c.Connection.PingInterval,
		PingTimeout:    c.Connection.PingTimeout,
		ConnectTimeout: c.Connection.ConnectTimeout,
		QueryTimeout:   c.Connection.QueryTimeout,
		Reconnect:      c.Connection.Reconnect,
	}
}

// PublishRetry - retry.Config публикации аудита с DLQ, если задан файл
func (b BrokerAuditConfig) PublishRetry() retry.Config {
	if b.DLQFile == "" {
		return b.Retry
	}
	return b.Retry.WithDLQ(b.DLQFile, b.DLQMaxSize)
}

// Save записывает конфигурацию в YAML
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
