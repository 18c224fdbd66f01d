package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAPIURL         = "http://localhost:8080"
	defaultReadInterval   = 5 * time.Second
	defaultPollInterval   = 2 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultDropoutRate    = 0.05
)

// Config holds runtime configuration for the board simulator.
type Config struct {
	APIURL         string
	ReadInterval   time.Duration
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Actuators      []string
	DropoutRate    float64
	Seed           int64
	DryRun         bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		APIURL:         defaultAPIURL,
		ReadInterval:   defaultReadInterval,
		PollInterval:   defaultPollInterval,
		RequestTimeout: defaultRequestTimeout,
		Actuators:      []string{"led1", "led2", "led3"},
		DropoutRate:    defaultDropoutRate,
		Seed:           time.Now().UnixNano(),
	}

	if v := strings.TrimSpace(os.Getenv("API_URL")); v != "" {
		cfg.APIURL = strings.TrimRight(v, "/")
	}

	var err error
	if cfg.ReadInterval, err = duration("SIM_READ_INTERVAL", cfg.ReadInterval); err != nil {
		return cfg, err
	}
	if cfg.PollInterval, err = duration("SIM_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = duration("SIM_REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return cfg, err
	}

	if v := strings.TrimSpace(os.Getenv("SIM_ACTUATORS")); v != "" {
		ids := make([]string, 0)
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return cfg, fmt.Errorf("invalid SIM_ACTUATORS: %s", v)
		}
		cfg.Actuators = ids
	}

	if v := strings.TrimSpace(os.Getenv("SIM_DROPOUT_RATE")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return cfg, fmt.Errorf("invalid SIM_DROPOUT_RATE: %s", v)
		}
		cfg.DropoutRate = f
	}

	if v := strings.TrimSpace(os.Getenv("SIM_SEED")); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid SIM_SEED: %w", err)
		}
		cfg.Seed = seed
	}

	dryRun := strings.TrimSpace(os.Getenv("DRY_RUN"))
	cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")

	return cfg, nil
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return def, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
