package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
	"servers": [
		{"ip": "10.0.0.5", "display": "web-1", "interval": 15, "token": "s3cr3t",
		 "limits": {"usage": {"limit": 80, "grace": 3}}}
	],
	"services": [
		{"name": "api", "url": "https://api.example.com/health", "interval": 30, "grace": 2}
	],
	"storage": {"backend": "sqlite", "path": "./metrics.db", "retention_days": 14}
}`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadResolvesServersServicesAndStorage(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "10.0.0.5:51243", cfg.Servers[0].ServerID())
	require.NotNil(t, cfg.Servers[0].Limits.Usage)
	assert.Equal(t, 3, cfg.Servers[0].Limits.Usage.Grace)

	require.Len(t, cfg.Services, 1)
	assert.Equal(t, "api", cfg.Services[0].Name)
	assert.Equal(t, 2, cfg.Services[0].Grace)

	assert.Equal(t, "./metrics.db", cfg.Storage.Path)
	assert.Equal(t, 14, cfg.Storage.RetentionDays)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestLoadRejectsDuplicateServiceNames(t *testing.T) {
	path := writeTempConfig(t, `{
		"services": [
			{"name": "api", "url": "https://a.example.com"},
			{"name": "api", "url": "https://b.example.com"}
		]
	}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDefaultsToNoStorageBackend(t *testing.T) {
	path := writeTempConfig(t, `{}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "none", string(cfg.Storage.Kind))
}
