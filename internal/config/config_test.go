package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"dbConn": "localhost:5432",
		"dbName": "lattice",
		"dbUser": "gw",
		"dbPass": "secret",
		"adminSecret": "master",
		"sessionSecret": "hmac"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.ListenAddr)
	assert.Equal(t, 120, cfg.RateLimitMax)
	assert.Equal(t, 60, cfg.RateLimitWindowSecs)
	assert.Equal(t, 300, cfg.RateLimitBlockSecs)
	assert.Equal(t, 30000, cfg.QueryTimeoutMs)
	assert.Equal(t, 256, cfg.WebhookQueueSize)
	assert.Equal(t, 4, cfg.WebhookWorkers)
	assert.Equal(t, 10, cfg.WebhookTimeoutSecs)
	assert.False(t, cfg.LegacyUnscopedReads)
}

func TestLoadMissingRequiredField(t *testing.T) {
	path := writeConfig(t, `{
		"dbConn": "localhost:5432",
		"dbName": "lattice",
		"dbUser": "gw",
		"dbPass": "secret",
		"sessionSecret": "hmac"
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adminSecret")
}

func TestLoadBadJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestConnStringEscapesCredentials(t *testing.T) {
	cfg := &Config{
		DBConn: "db:5432",
		DBName: "lattice",
		DBUser: "gw",
		DBPass: "p@ss/word",
	}
	s := cfg.ConnString()
	assert.Contains(t, s, "p%40ss%2Fword")
	assert.NotContains(t, s, "p@ss/word")
}
