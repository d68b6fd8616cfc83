// internal/common/config/config.go
package config

import "fmt"

// Lease strategies for publisher.lease.
const (
	LeaseNone   = "none"
	LeaseStatus = "status"
	LeaseRedis  = "redis"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Airtable      AirtableConfig          `mapstructure:"airtable"`
	Layer         LayerConfig             `mapstructure:"layer"`
	Publisher     PublisherConfig         `mapstructure:"publisher"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Server        ServerConfig            `mapstructure:"server"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// AirtableConfig points at the Templates table.
type AirtableConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	BaseID  string `mapstructure:"base_id"`
	Table   string `mapstructure:"table"`
	Timeout int    `mapstructure:"timeout"` // milliseconds, 0 = transport default
}

type LayerConfig struct {
	BaseURL string `mapstructure:"base_url"`
	AppURL  string `mapstructure:"app_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds, 0 = transport default
}

type PublisherConfig struct {
	Lease        string `mapstructure:"lease"`
	LeaseTTL     int    `mapstructure:"lease_ttl"` // milliseconds
	Upsert       bool   `mapstructure:"upsert"`
	SingleRecord bool   `mapstructure:"single_record"`
	Interval     int    `mapstructure:"interval"` // milliseconds, used by serve
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// NotificationConfig controls failure notifications.
type NotificationConfig struct {
	Region string `mapstructure:"region"`
	SNS    struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	SES struct {
		Enabled bool     `mapstructure:"enabled"`
		From    string   `mapstructure:"from"`
		To      []string `mapstructure:"to"`
	} `mapstructure:"ses"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// WorkerConfig holds the settings applicable to every Zeebe worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
}
