package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("DOCSHUB_CONFIG", "/etc/docshub.yaml")
	t.Setenv("DOCSHUB_DB", "/var/lib/docshub.db")
	t.Setenv("PORT", "9090")
	t.Setenv("SERVER_MODE", "true")
	t.Setenv("LOG_LEVEL", "")

	env := LoadEnv()
	assert.Equal(t, "/etc/docshub.yaml", env.ConfigPath)
	assert.Equal(t, "/var/lib/docshub.db", env.DBPath)
	assert.Equal(t, "9090", env.Port)
	assert.True(t, env.ServerMode)
	assert.Equal(t, "info", env.LogLevel)
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "repository", "alpha/widget")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "repository=alpha/widget")
}

func TestLoadConfig_EnvOverridesStoragePath(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "docshub.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
storage:
  path: from-file.db
curated_repositories:
  - name: alpha/widget
    category: Tools
`), 0o644))

	cfg, err := LoadConfig(Env{ConfigPath: cfgPath, DBPath: filepath.Join(dir, "override.db")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "override.db"), cfg.Storage.Path)
	require.Len(t, cfg.Curated, 1)

	_, err = LoadConfig(Env{ConfigPath: filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}

func TestNew_WiresComponents(t *testing.T) {
	env := Env{DBPath: filepath.Join(t.TempDir(), "docshub.db")}

	a, err := New(context.Background(), env, NewLogger(&bytes.Buffer{}, "error"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NoError(t, a.Store.Health(context.Background()))
	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Indexer)
	assert.Equal(t, env.DBPath, a.Config.Storage.Path)
}
