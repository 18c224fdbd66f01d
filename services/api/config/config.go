package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/02loveslollipop/sensorlink/services/api/internal/actuator"
	"github.com/02loveslollipop/sensorlink/services/api/internal/broadcast"
	"github.com/02loveslollipop/sensorlink/services/api/internal/liveness"
	"github.com/02loveslollipop/sensorlink/services/api/internal/sensor"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds environment-driven settings for the device bridge.
type Config struct {
	Storage         string
	DatabaseURL     string
	Port            int
	BearerToken     string
	DefaultLimit    int
	LivenessWindow  time.Duration
	StalenessWindow time.Duration

	MQTTBroker      string
	MQTTTopicPrefix string
	KafkaBrokers    []string
	KafkaTopic      string

	DeviceConfigPath string
	Device           DeviceProfile
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Storage:         StoragePostgres,
		Port:            8080,
		DefaultLimit:    100,
		LivenessWindow:  liveness.DefaultWindow,
		StalenessWindow: sensor.DefaultStalenessWindow,
		MQTTTopicPrefix: broadcast.DefaultTopicPrefix,
		KafkaTopic:      broadcast.DefaultKafkaTopic,
		Device:          DefaultDeviceProfile(),
	}

	if storage := strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE"))); storage != "" {
		switch storage {
		case StoragePostgres, StorageMemory:
			cfg.Storage = storage
		default:
			return cfg, fmt.Errorf("invalid STORAGE: %s", storage)
		}
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.Storage == StoragePostgres {
		return cfg, errors.New("DATABASE_URL is required")
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := os.Getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	if limitStr := os.Getenv("API_DEFAULT_LIMIT"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			cfg.DefaultLimit = limit
		} else {
			return cfg, fmt.Errorf("invalid API_DEFAULT_LIMIT: %s", limitStr)
		}
	}

	var err error
	if cfg.LivenessWindow, err = durationEnv("LIVENESS_WINDOW", cfg.LivenessWindow); err != nil {
		return cfg, err
	}
	if cfg.StalenessWindow, err = durationEnv("STALENESS_WINDOW", cfg.StalenessWindow); err != nil {
		return cfg, err
	}

	cfg.BearerToken = os.Getenv("API_BEARER_TOKEN")
	cfg.MQTTBroker = os.Getenv("MQTT_BROKER")
	if prefix := os.Getenv("MQTT_TOPIC_PREFIX"); prefix != "" {
		cfg.MQTTTopicPrefix = prefix
	}
	cfg.KafkaBrokers = splitCSV(os.Getenv("KAFKA_BROKERS"))
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		cfg.KafkaTopic = topic
	}

	cfg.DeviceConfigPath = os.Getenv("DEVICE_CONFIG")
	if cfg.DeviceConfigPath != "" {
		profile, err := LoadDeviceProfile(cfg.DeviceConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg.Device = profile
	}

	// ACTUATORS overrides the profile list.
	if ids := splitCSV(os.Getenv("ACTUATORS")); len(ids) > 0 {
		if _, err := actuator.NewSet(ids...); err != nil {
			return cfg, fmt.Errorf("invalid ACTUATORS: %w", err)
		}
		cfg.Device.Actuators = ids
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return def, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
