// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, overlays config.{APP_ENVIRONMENT}.yaml and
// applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults registers every key so AutomaticEnv also feeds Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "template-publisher")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	v.SetDefault("airtable.base_url", "https://api.airtable.com/v0")
	v.SetDefault("airtable.api_key", "")
	v.SetDefault("airtable.base_id", "")
	v.SetDefault("airtable.table", "Templates")
	v.SetDefault("airtable.timeout", 0)

	v.SetDefault("layer.base_url", "https://api.layer.team")
	v.SetDefault("layer.app_url", "https://app.layer.team")
	v.SetDefault("layer.api_key", "")
	v.SetDefault("layer.timeout", 0)

	v.SetDefault("publisher.lease", LeaseNone)
	v.SetDefault("publisher.lease_ttl", 300000)
	v.SetDefault("publisher.upsert", false)
	v.SetDefault("publisher.single_record", false)
	v.SetDefault("publisher.interval", 0)

	v.SetDefault("camunda.enabled", false)
	v.SetDefault("camunda.broker_address", "")
	v.SetDefault("camunda.max_jobs_active", 1)
	v.SetDefault("camunda.timeout", 300000)
	v.SetDefault("camunda.request_timeout", 30000)

	v.SetDefault("database.postgres.enabled", false)
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.elasticsearch.enabled", false)
	v.SetDefault("database.elasticsearch.index", "template-validation-reports")
	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("server.address", ":8080")

	v.SetDefault("notifications.region", "us-east-1")
	v.SetDefault("notifications.sns.enabled", false)
	v.SetDefault("notifications.sns.topic_arn", "")
	v.SetDefault("notifications.ses.enabled", false)
	v.SetDefault("notifications.ses.from", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars replaces ${VAR} placeholders in string values. An unset
// variable expands to "" so required-key validation still catches it.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills credentials from their conventional env names.
func overrideEmptyConfig(cfg *Config) {
	overrides := []struct {
		target *string
		env    string
	}{
		{&cfg.Airtable.APIKey, "AIRTABLE_API_KEY"},
		{&cfg.Airtable.BaseID, "AIRTABLE_BASE_ID"},
		{&cfg.Layer.APIKey, "LAYER_API_KEY"},
		{&cfg.Database.Postgres.User, "DB_USER"},
		{&cfg.Database.Postgres.Password, "DB_PASSWORD"},
		{&cfg.Database.Redis.Address, "REDIS_ADDRESS"},
		{&cfg.Camunda.BrokerAddress, "ZEEBE_ADDRESS"},
	}
	for _, o := range overrides {
		if *o.target != "" {
			continue
		}
		if val := os.Getenv(o.env); val != "" {
			*o.target = val
		}
	}
}

// applyDefaults sets values YAML may have zeroed out.
func applyDefaults(cfg *Config) {
	if cfg.Airtable.Table == "" {
		cfg.Airtable.Table = "Templates"
	}
	if cfg.Layer.AppURL == "" {
		cfg.Layer.AppURL = "https://app.layer.team"
	}
	if cfg.Publisher.Lease == "" {
		cfg.Publisher.Lease = LeaseNone
	}
	cfg.Publisher.Lease = strings.ToLower(cfg.Publisher.Lease)
	if cfg.Publisher.LeaseTTL <= 0 {
		cfg.Publisher.LeaseTTL = 300000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 1
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 300000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 5
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "template-validation-reports"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 1
		}
		if worker.Timeout == 0 {
			worker.Timeout = cfg.Camunda.Timeout
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Airtable.APIKey == "" {
		return fmt.Errorf("airtable.api_key is required")
	}
	if cfg.Airtable.BaseID == "" {
		return fmt.Errorf("airtable.base_id is required")
	}
	if cfg.Layer.APIKey == "" {
		return fmt.Errorf("layer.api_key is required")
	}

	switch cfg.Publisher.Lease {
	case LeaseNone, LeaseStatus:
	case LeaseRedis:
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required when publisher.lease is redis")
		}
	default:
		return fmt.Errorf("publisher.lease must be one of none, status, redis; got %q", cfg.Publisher.Lease)
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if cfg.Database.Postgres.Enabled {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	}

	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required")
	}

	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required")
	}
	if cfg.Notifications.SES.Enabled && (cfg.Notifications.SES.From == "" || len(cfg.Notifications.SES.To) == 0) {
		return fmt.Errorf("notifications.ses.from and notifications.ses.to are required")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: cfg.Camunda.MaxJobsActive,
		Timeout:       cfg.Camunda.Timeout,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
