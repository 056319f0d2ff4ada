package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir     string        `yaml:"data_dir"`
	Snapshot    string        `yaml:"snapshot"`
	GitHistory  bool          `yaml:"git_history"`
	AuthorName  string        `yaml:"author_name"`
	AuthorEmail string        `yaml:"author_email"`
	Strict      bool          `yaml:"strict"`
	SLAHorizon  time.Duration `yaml:"sla_horizon"`
	SLASchedule string        `yaml:"sla_schedule"`
	MetricsAddr string        `yaml:"metrics_addr"`
	MirrorURL   string        `yaml:"mirror_url"`
	AWSRegion   string        `yaml:"aws_region"`
	S3Endpoint  string        `yaml:"s3_endpoint"`
	Environment string        `yaml:"environment"`
	LogLevel    string        `yaml:"log_level"`
}

// LoadConfig loads configuration from a .env file, if present, and the
// environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file successfully")
	}

	horizon, err := time.ParseDuration(getEnv("ADORCH_SLA_HORIZON", "24h"))
	if err != nil {
		return nil, fmt.Errorf("ADORCH_SLA_HORIZON: %w", err)
	}

	return &Config{
		DataDir:     getEnv("ADORCH_DATA_DIR", "./data"),
		Snapshot:    getEnv("ADORCH_SNAPSHOT", "data.json"),
		GitHistory:  getBool("ADORCH_GIT_HISTORY", true),
		AuthorName:  getEnv("ADORCH_AUTHOR_NAME", "adorch"),
		AuthorEmail: getEnv("ADORCH_AUTHOR_EMAIL", "adorch@localhost"),
		Strict:      getBool("ADORCH_STRICT", false),
		SLAHorizon:  horizon,
		SLASchedule: getEnv("ADORCH_SLA_SCHEDULE", "*/15 * * * *"),
		MetricsAddr: getEnv("ADORCH_METRICS_ADDR", ":9090"),
		MirrorURL:   getEnv("ADORCH_MIRROR_URL", ""),
		AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:  getEnv("ADORCH_S3_ENDPOINT", ""),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func (cfg *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SnapshotPath is the snapshot file inside the data directory.
func (cfg *Config) SnapshotPath() string {
	return filepath.Join(cfg.DataDir, cfg.Snapshot)
}

func (cfg *Config) IsProduction() bool {
	return cfg.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
