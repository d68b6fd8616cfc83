package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
airtable:
  api_key: key-from-file
  base_id: appFile
layer:
  api_key: layer-from-file
`

func TestLoadFromFile_Defaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "Templates", cfg.Airtable.Table)
	assert.Equal(t, "https://api.airtable.com/v0", cfg.Airtable.BaseURL)
	assert.Equal(t, "https://app.layer.team", cfg.Layer.AppURL)
	assert.Equal(t, LeaseNone, cfg.Publisher.Lease)
	assert.False(t, cfg.Publisher.Upsert)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Camunda.Enabled)
}

func TestLoadFromFile_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AIRTABLE_TABLE", "Staging Templates")
	t.Setenv("PUBLISHER_UPSERT", "true")
	t.Setenv("PUBLISHER_LEASE", "STATUS")
	t.Setenv("LAYER_TOKEN", "expanded-token")

	cfg, err := LoadFromFile(writeConfig(t, `
airtable:
  api_key: key
  base_id: app
layer:
  api_key: ${LAYER_TOKEN}
`))
	require.NoError(t, err)

	assert.Equal(t, "Staging Templates", cfg.Airtable.Table)
	assert.True(t, cfg.Publisher.Upsert)
	assert.Equal(t, LeaseStatus, cfg.Publisher.Lease)
	assert.Equal(t, "expanded-token", cfg.Layer.APIKey)
}

func TestLoadFromFile_CredentialsFromEnv(t *testing.T) {
	t.Setenv("AIRTABLE_API_KEY", "env-key")
	t.Setenv("AIRTABLE_BASE_ID", "appEnv")
	t.Setenv("LAYER_API_KEY", "env-layer")

	cfg, err := LoadFromFile(writeConfig(t, "app:\n  name: template-publisher\n"))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Airtable.APIKey)
	assert.Equal(t, "appEnv", cfg.Airtable.BaseID)
	assert.Equal(t, "env-layer", cfg.Layer.APIKey)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{"unknown lease", "publisher:\n  lease: zookeeper\n", "publisher.lease"},
		{"redis lease without address", "publisher:\n  lease: redis\n", "database.redis.address"},
		{"camunda without broker", "camunda:\n  enabled: true\n", "camunda.broker_address"},
		{"postgres without host", "database:\n  postgres:\n    enabled: true\n", "database.postgres.host"},
		{"elasticsearch without addresses", "database:\n  elasticsearch:\n    enabled: true\n", "database.elasticsearch.addresses"},
		{"sns without topic", "notifications:\n  sns:\n    enabled: true\n", "notifications.sns.topic_arn"},
		{"ses without recipients", "notifications:\n  ses:\n    enabled: true\n    from: ops@example.com\n", "notifications.ses"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, minimalConfig+tt.extra))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingCredentials(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, "layer:\n  api_key: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "airtable.api_key")
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestGetWorkerConfig(t *testing.T) {
	cfg := &Config{
		Camunda: CamundaConfig{MaxJobsActive: 4, Timeout: 60000},
		Workers: map[string]WorkerConfig{
			"disabled": {Enabled: false, MaxJobsActive: 1, Timeout: 1000},
		},
	}

	fallback := GetWorkerConfig(cfg, "template-publish")
	assert.True(t, fallback.Enabled)
	assert.Equal(t, 4, fallback.MaxJobsActive)
	assert.Equal(t, time.Minute, GetDuration(fallback.Timeout))

	assert.False(t, IsWorkerEnabled(cfg, "disabled"))
	assert.True(t, IsWorkerEnabled(cfg, "template-publish"))
}

func TestLoadFromFile_UnsetPlaceholderIsMissing(t *testing.T) {
	t.Setenv("AIRTABLE_API_KEY", "")

	_, err := LoadFromFile(writeConfig(t, `
airtable:
  api_key: ${AIRTABLE_API_KEY}
  base_id: app
layer:
  api_key: layer
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "airtable.api_key")
}
