package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
version: "1"
project: blog
default_database: main
databases:
  main:
    url: postgres://localhost:5432/blog
    max_open_conns: 20
    conn_max_lifetime: 30m
  archive:
    url: postgres://localhost:5432/archive
    schema: history
models:
  directories: [./models, ./legacy]
mutators:
  datetime: ["getter:carbon", "setter:carbon"]
export:
  format: msgpack
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "squall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "blog", cfg.Project)
	assert.Equal(t, []string{"archive", "main"}, cfg.DatabaseNames())

	main := cfg.Databases["main"]
	assert.Equal(t, "postgres", main.Driver)
	assert.Equal(t, "public", main.Schema)
	assert.Equal(t, 20, main.MaxOpenConns)
	assert.Equal(t, 5, main.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, main.ConnMaxLifetime)
	assert.Equal(t, 300*time.Second, main.StatementTimeout)
	assert.Equal(t, "history", cfg.Databases["archive"].Schema)

	assert.Equal(t, []string{"./models", "./legacy"}, cfg.ModelDirectories())
	assert.Equal(t, "msgpack", cfg.Export.Format)
	assert.Equal(t, "info", cfg.Logging.Level)

	sc := cfg.SchemaConfig()
	assert.Equal(t, "main", sc.DefaultDatabase)
	assert.Equal(t, []string{"getter:carbon", "setter:carbon"}, sc.Mutators["datetime"])
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "databases: [unclosed"},
		{"unsupported driver", "databases:\n  main:\n    driver: mysql\n"},
		{"bad mutator", "mutators:\n  text: [\"markdown\"]\n"},
		{"bad export format", "export:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	path := writeConfig(t, sample)
	t.Setenv(EnvConfigPath, path)
	assert.Equal(t, path, Path())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "blog", cfg.Project)

	t.Setenv(EnvConfigPath, "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.Equal(t, "", Path())
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.DefaultDatabase, "no config file yields defaults")
	assert.Equal(t, []string{"./models"}, cfg.ModelDirectories())
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Project = "saved"
	cfg.Databases["default"] = NewDatabase("postgres://localhost/saved")
	require.NoError(t, cfg.Validate())

	path := filepath.Join(t.TempDir(), "nested", "squall.yaml")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Project)
	assert.Equal(t, 10*time.Minute, loaded.Databases["default"].ConnMaxLifetime)
}

func TestDBConfigs(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	configs := cfg.DBConfigs("")
	require.Len(t, configs, 2)
	assert.Equal(t, "history", configs["archive"].Schema)

	overridden := cfg.DBConfigs("postgres://override/blog")
	assert.Equal(t, "postgres://override/blog", overridden["main"].URL)
	assert.Equal(t, 20, overridden["main"].MaxOpenConns)

	bare := Default().DBConfigs("postgres://only/db")
	require.Contains(t, bare, "default")
	assert.Equal(t, "public", bare["default"].Schema)
}
