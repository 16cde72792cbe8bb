package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App               AppConfig          `mapstructure:"app"`
	Server            ServerConfig       `mapstructure:"server"`
	BookingDatabase   DatabaseConfig     `mapstructure:"booking_database"`   // Booking service database
	InventoryDatabase DatabaseConfig     `mapstructure:"inventory_database"` // Inventory service database
	Redis             RedisConfig        `mapstructure:"redis"`
	Kafka             KafkaConfig        `mapstructure:"kafka"`
	JWT               JWTConfig          `mapstructure:"jwt"`
	OTel              OTelConfig         `mapstructure:"otel"`
	Services          ServicesConfig     `mapstructure:"services"`
	Notification      NotificationConfig `mapstructure:"notification"`
	Worker            WorkerConfig       `mapstructure:"worker"`
}

// ServicesConfig holds URLs and credentials for service-to-service calls
type ServicesConfig struct {
	InventoryServiceURL string        `mapstructure:"inventory_service_url"`
	InternalSecret      string        `mapstructure:"internal_secret"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the connection string in URL form, as used by migrations
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
	BookingTopic  string   `mapstructure:"booking_topic"`
}

// JWTConfig holds settings for validating bearer tokens on direct calls
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
	ExportLogs    bool    `mapstructure:"export_logs"`
}

// NotificationConfig holds the notification worker's delivery settings
type NotificationConfig struct {
	Channel      string        `mapstructure:"channel"` // log or smtp
	SMTPHost     string        `mapstructure:"smtp_host"`
	SMTPPort     int           `mapstructure:"smtp_port"`
	SMTPUsername string        `mapstructure:"smtp_username"`
	SMTPPassword string        `mapstructure:"smtp_password"`
	FromAddress  string        `mapstructure:"from_address"`
	DedupeTTL    time.Duration `mapstructure:"dedupe_ttl"`
}

// WorkerConfig holds settings for the release retry worker
type WorkerConfig struct {
	ReleasePollInterval time.Duration `mapstructure:"release_poll_interval"`
	ReleaseBatchSize    int           `mapstructure:"release_batch_size"`
	ReleaseMaxAttempts  int           `mapstructure:"release_max_attempts"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine, environment variables still apply
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "event-booking")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("APP_LOG_LEVEL", "info")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8083)
	v.SetDefault("SERVER_READ_TIMEOUT", "10s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Each service owns its database
	setDatabaseDefaults(v, "BOOKING_DATABASE", "booking_db")
	setDatabaseDefaults(v, "INVENTORY_DATABASE", "inventory_db")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "notification-service")
	v.SetDefault("KAFKA_CLIENT_ID", "event-booking")
	v.SetDefault("KAFKA_BOOKING_TOPIC", "booking-events")

	// JWT defaults
	v.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	v.SetDefault("JWT_ISSUER", "event-booking")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "event-booking")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
	v.SetDefault("OTEL_EXPORT_LOGS", false)

	// Service-to-service defaults
	v.SetDefault("SERVICES_INVENTORY_SERVICE_URL", "http://localhost:8082")
	v.SetDefault("SERVICES_INTERNAL_SECRET", "internal-secret-change-in-production")
	v.SetDefault("SERVICES_REQUEST_TIMEOUT", "5s")

	// Notification defaults
	v.SetDefault("NOTIFICATION_CHANNEL", "log")
	v.SetDefault("NOTIFICATION_SMTP_HOST", "localhost")
	v.SetDefault("NOTIFICATION_SMTP_PORT", 1025)
	v.SetDefault("NOTIFICATION_FROM_ADDRESS", "no-reply@event-booking.local")
	v.SetDefault("NOTIFICATION_DEDUPE_TTL", "24h")

	// Release retry worker defaults
	v.SetDefault("WORKER_RELEASE_POLL_INTERVAL", "10s")
	v.SetDefault("WORKER_RELEASE_BATCH_SIZE", 50)
	v.SetDefault("WORKER_RELEASE_MAX_ATTEMPTS", 8)
}

func setDatabaseDefaults(v *viper.Viper, prefix, dbName string) {
	v.SetDefault(prefix+"_HOST", "localhost")
	v.SetDefault(prefix+"_PORT", 5432)
	v.SetDefault(prefix+"_USER", "postgres")
	v.SetDefault(prefix+"_PASSWORD", "postgres")
	v.SetDefault(prefix+"_DBNAME", dbName)
	v.SetDefault(prefix+"_SSLMODE", "disable")
	v.SetDefault(prefix+"_MAX_OPEN_CONNS", 25)
	v.SetDefault(prefix+"_MAX_IDLE_CONNS", 5)
	v.SetDefault(prefix+"_CONN_MAX_LIFETIME", "1h")
	v.SetDefault(prefix+"_CONN_MAX_IDLE_TIME", "30m")
}

func bindDatabase(v *viper.Viper, prefix string) DatabaseConfig {
	return DatabaseConfig{
		Host:            v.GetString(prefix + "_HOST"),
		Port:            v.GetInt(prefix + "_PORT"),
		User:            v.GetString(prefix + "_USER"),
		Password:        v.GetString(prefix + "_PASSWORD"),
		DBName:          v.GetString(prefix + "_DBNAME"),
		SSLMode:         v.GetString(prefix + "_SSLMODE"),
		MaxOpenConns:    v.GetInt(prefix + "_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt(prefix + "_MAX_IDLE_CONNS"),
		ConnMaxLifetime: v.GetDuration(prefix + "_CONN_MAX_LIFETIME"),
		ConnMaxIdleTime: v.GetDuration(prefix + "_CONN_MAX_IDLE_TIME"),
	}
}

func bindConfig(v *viper.Viper, cfg *Config) {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")
	cfg.App.LogLevel = v.GetString("APP_LOG_LEVEL")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Databases
	cfg.BookingDatabase = bindDatabase(v, "BOOKING_DATABASE")
	cfg.InventoryDatabase = bindDatabase(v, "INVENTORY_DATABASE")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ConsumerGroup = v.GetString("KAFKA_CONSUMER_GROUP")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.BookingTopic = v.GetString("KAFKA_BOOKING_TOPIC")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")
	cfg.OTel.ExportLogs = v.GetBool("OTEL_EXPORT_LOGS")

	// Services
	cfg.Services.InventoryServiceURL = strings.TrimRight(v.GetString("SERVICES_INVENTORY_SERVICE_URL"), "/")
	cfg.Services.InternalSecret = v.GetString("SERVICES_INTERNAL_SECRET")
	cfg.Services.RequestTimeout = v.GetDuration("SERVICES_REQUEST_TIMEOUT")

	// Notification
	cfg.Notification.Channel = v.GetString("NOTIFICATION_CHANNEL")
	cfg.Notification.SMTPHost = v.GetString("NOTIFICATION_SMTP_HOST")
	cfg.Notification.SMTPPort = v.GetInt("NOTIFICATION_SMTP_PORT")
	cfg.Notification.SMTPUsername = v.GetString("NOTIFICATION_SMTP_USERNAME")
	cfg.Notification.SMTPPassword = v.GetString("NOTIFICATION_SMTP_PASSWORD")
	cfg.Notification.FromAddress = v.GetString("NOTIFICATION_FROM_ADDRESS")
	cfg.Notification.DedupeTTL = v.GetDuration("NOTIFICATION_DEDUPE_TTL")

	// Worker
	cfg.Worker.ReleasePollInterval = v.GetDuration("WORKER_RELEASE_POLL_INTERVAL")
	cfg.Worker.ReleaseBatchSize = v.GetInt("WORKER_RELEASE_BATCH_SIZE")
	cfg.Worker.ReleaseMaxAttempts = v.GetInt("WORKER_RELEASE_MAX_ATTEMPTS")
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Services.InternalSecret == "" {
		return fmt.Errorf("internal service secret is required")
	}

	if c.Services.RequestTimeout <= 0 {
		return fmt.Errorf("invalid service request timeout: %s", c.Services.RequestTimeout)
	}

	if c.IsProduction() {
		if c.JWT.Secret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT secret must be changed in production")
		}
		if c.Services.InternalSecret == "internal-secret-change-in-production" {
			return fmt.Errorf("internal service secret must be changed in production")
		}
	}

	return nil
}

// ValidateBookingDatabase validates booking database configuration
func (c *Config) ValidateBookingDatabase() error {
	if c.BookingDatabase.Host == "" {
		return fmt.Errorf("BOOKING_DATABASE_HOST is required")
	}
	if c.BookingDatabase.DBName == "" {
		return fmt.Errorf("BOOKING_DATABASE_DBNAME is required")
	}
	return nil
}

// ValidateInventoryDatabase validates inventory database configuration
func (c *Config) ValidateInventoryDatabase() error {
	if c.InventoryDatabase.Host == "" {
		return fmt.Errorf("INVENTORY_DATABASE_HOST is required")
	}
	if c.InventoryDatabase.DBName == "" {
		return fmt.Errorf("INVENTORY_DATABASE_DBNAME is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
