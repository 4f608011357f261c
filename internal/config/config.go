package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the runtime configuration for the ruuviair services.
type Config struct {
	Database struct {
		Path string // SQLite database file
	}

	MQTT struct {
		Broker   string
		ClientID string
		Username string
		Password string
		// Topic the BLE gateway publishes advertisement envelopes to,
		// e.g. "ruuvi/+/adv"
		Topic string
		QoS   byte
	}

	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
	}

	HTTP struct {
		Addr string
	}

	Ingest struct {
		// Minimum wall-clock spacing between persisted samples per device
		MinInterval time.Duration
		// Silence after which a device reports offline, and the threshold
		// separating a counter wraparound from a device restart
		OfflineAfter time.Duration
	}

	Retention struct {
		MaxAge   time.Duration
		Interval time.Duration
	}

	Uploader struct {
		APIKey    string
		BaseURL   string
		TargetMAC string
		Interval  time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Path = getEnv("RUUVI_DB_PATH", "ruuvi_data.db")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "ruuviair")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "ruuvi/+/adv")
	cfg.MQTT.QoS = 1

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8088")

	var err error
	if cfg.Ingest.MinInterval, err = getEnvDuration("INGEST_MIN_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Ingest.OfflineAfter, err = getEnvDuration("INGEST_OFFLINE_AFTER", 5*time.Minute); err != nil {
		return nil, err
	}

	retentionDays := getEnvInt("RETENTION_DAYS", 30)
	cfg.Retention.MaxAge = time.Duration(retentionDays) * 24 * time.Hour
	if cfg.Retention.Interval, err = getEnvDuration("RETENTION_INTERVAL", time.Hour); err != nil {
		return nil, err
	}

	cfg.Uploader.APIKey = getEnv("UPLOAD_API_KEY", "")
	cfg.Uploader.BaseURL = getEnv("UPLOAD_BASE_URL", "https://api.thingspeak.com/update")
	cfg.Uploader.TargetMAC = getEnv("UPLOAD_TARGET_MAC", "")
	if cfg.Uploader.Interval, err = getEnvDuration("UPLOAD_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Ingest.MinInterval < 0 {
		return nil, fmt.Errorf("INGEST_MIN_INTERVAL must be >= 0")
	}

	return cfg, nil
}

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

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
