package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"auditrisk/ml"
	"auditrisk/predlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
http:
  port: 8081
  timeout: 5s
model:
  type: decision_tree
  path: /srv/model.json
  cache_size: 128
  watch: true
outputs:
  dir: /var/lib/auditrisk
  backend: sqlite
log:
  level: debug
  format: console
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, ml.ModelTypeDecisionTree, cfg.Model.Type)
	assert.Equal(t, 128, cfg.Model.CacheSize)
	assert.True(t, cfg.Model.Watch)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, predlog.DefaultFileName, cfg.Outputs.LogFile)
	assert.Equal(t, filepath.Join("/var/lib/auditrisk", "basic_eda_report.txt"), cfg.ReportPath())

	store := cfg.LogStore()
	assert.Equal(t, predlog.BackendSQLite, store.Backend)
	assert.Equal(t, "/var/lib/auditrisk", store.Dir)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvPort, "9090")
	t.Setenv(EnvModelPath, "/tmp/m.json")
	t.Setenv(EnvOutputsDir, "/tmp/out")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(writeFile(t, "http:\n  port: 8081\n"))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "/tmp/m.json", cfg.Model.Path)
	assert.Equal(t, "/tmp/out", cfg.Outputs.Dir)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  string
	}{
		{name: "malformed yaml", body: "http: [port"},
		{name: "bad port", body: "http:\n  port: 70000\n"},
		{name: "unknown model", body: "model:\n  type: svm\n"},
		{name: "unknown backend", body: "outputs:\n  backend: csv\n"},
		{name: "negative cache", body: "model:\n  cache_size: -1\n"},
		{name: "non numeric port env", body: "", env: "eighty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv(EnvPort, tt.env)
			}
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestOutputsDirMovesEveryArtifact(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvOutputsDir, dir)

	cfg, err := Load(writeFile(t, "outputs:\n  backend: sqlite\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "basic_eda_report.txt"), cfg.ReportPath())

	store, err := predlog.Open(cfg.LogStore())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.FileExists(t, filepath.Join(dir, predlog.DefaultSQLiteFileName))
}
