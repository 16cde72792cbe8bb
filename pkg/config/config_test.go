package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, 8083, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8083", cfg.Server.Addr())
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "booking-events", cfg.Kafka.BookingTopic)
	assert.Equal(t, "http://localhost:8082", cfg.Services.InventoryServiceURL)
	assert.Equal(t, 5*time.Second, cfg.Services.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Notification.DedupeTTL)
	assert.Equal(t, "booking_db", cfg.BookingDatabase.DBName)
	assert.Equal(t, "inventory_db", cfg.InventoryDatabase.DBName)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SERVICES_INVENTORY_SERVICE_URL", "http://inventory:8082/")
	t.Setenv("SERVICES_REQUEST_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "http://inventory:8082", cfg.Services.InventoryServiceURL)
	assert.Equal(t, 2*time.Second, cfg.Services.RequestTimeout)
}

func TestLoadWithPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "booking.env")
	require.NoError(t, os.WriteFile(path, []byte("BOOKING_DATABASE_DBNAME=bookings_test\nWORKER_RELEASE_MAX_ATTEMPTS=3\n"), 0o600))

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, "bookings_test", cfg.BookingDatabase.DBName)
	assert.Equal(t, 3, cfg.Worker.ReleaseMaxAttempts)
}

func TestLoadWithPath_Missing(t *testing.T) {
	_, err := LoadWithPath(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:      AppConfig{Name: "event-booking", Environment: "development"},
			Server:   ServerConfig{Port: 8083},
			JWT:      JWTConfig{Secret: "s"},
			Services: ServicesConfig{InternalSecret: "x", RequestTimeout: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"no internal secret", func(c *Config) { c.Services.InternalSecret = "" }, true},
		{"no timeout", func(c *Config) { c.Services.RequestTimeout = 0 }, true},
		{"default jwt secret in production", func(c *Config) {
			c.App.Environment = "production"
			c.JWT.Secret = "your-secret-key-change-in-production"
		}, true},
		{"default internal secret in production", func(c *Config) {
			c.App.Environment = "production"
			c.Services.InternalSecret = "internal-secret-change-in-production"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_URL(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "booking_db", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/booking_db?sslmode=disable", d.URL())
	assert.Contains(t, d.DSN(), "dbname=booking_db")
}
