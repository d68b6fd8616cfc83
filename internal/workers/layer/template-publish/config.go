package templatepublish

import (
	"fmt"
	"time"

	"template-publisher/internal/common/config"
	"template-publisher/internal/common/layer"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	AppURL        string        `mapstructure:"app_url"`
	Upsert        bool          `mapstructure:"upsert"`
	SingleRecord  bool          `mapstructure:"single_record"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 1,
		Timeout:       5 * time.Minute,
		AppURL:        layer.DefaultAppURL,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.AppURL == "" {
		return fmt.Errorf("app_url is required")
	}
	return nil
}

// createConfigFromAppConfig layers the application config over the defaults.
// A non-nil custom config wins outright.
func createConfigFromAppConfig(appConfig *config.Config, custom *Config) *Config {
	if custom != nil {
		return custom
	}

	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}

	if appConfig.Layer.AppURL != "" {
		cfg.AppURL = appConfig.Layer.AppURL
	}
	cfg.Upsert = appConfig.Publisher.Upsert
	cfg.SingleRecord = appConfig.Publisher.SingleRecord

	workerCfg := config.GetWorkerConfig(appConfig, WorkerName)
	cfg.Enabled = workerCfg.Enabled
	if workerCfg.MaxJobsActive > 0 {
		cfg.MaxJobsActive = workerCfg.MaxJobsActive
	}
	if workerCfg.Timeout > 0 {
		cfg.Timeout = config.GetDuration(workerCfg.Timeout)
	}
	return cfg
}
