package application

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config defines ingestion tuning.
type Config struct {
	BatchConcurrency    int `yaml:"batch_concurrency"`
	MaxBatchSize        int `yaml:"max_batch_size"`
	PMIntervalDays      int `yaml:"pm_interval_days"`
	OutboxDispatchLimit int `yaml:"outbox_dispatch_limit"`
}

// LoadConfig loads ingestion config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		BatchConcurrency:    getenvIntDefault("INGEST_BATCH_CONCURRENCY", 8),
		MaxBatchSize:        getenvIntDefault("INGEST_MAX_BATCH_SIZE", 1000),
		PMIntervalDays:      getenvIntDefault("PM_INTERVAL_DAYS", DefaultPMIntervalDays),
		OutboxDispatchLimit: getenvIntDefault("OUTBOX_DISPATCH_LIMIT", 50),
	}

	if path := os.Getenv("INGEST_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.BatchConcurrency <= 0 {
		return cfg, errors.New("ingestion: batch concurrency must be positive")
	}
	if cfg.MaxBatchSize <= 0 {
		return cfg, errors.New("ingestion: max batch size must be positive")
	}
	if cfg.PMIntervalDays <= 0 {
		return cfg, errors.New("ingestion: pm interval days must be positive")
	}
	if cfg.OutboxDispatchLimit <= 0 {
		return cfg, errors.New("ingestion: outbox dispatch limit must be positive")
	}
	return cfg, nil
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
