package application

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/shopimport/internal/config"
	"github.com/JonMunkholm/shopimport/internal/store/memory"
)

func writeImportConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "import.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testConfig(path string) *config.Config {
	return &config.Config{
		Import: config.ImportConfig{
			ConfigFile:    path,
			BatchSize:     10,
			Workers:       2,
			MaxConcurrent: 1,
		},
	}
}

func TestOpen_Memory(t *testing.T) {
	path := writeImportConfig(t, `
product:
  csv:
    processors: [property]
`)
	cfg := testConfig(path)
	cfg.Database.URL = "postgres://unused@localhost/db"

	app, err := Open(context.Background(), cfg, Options{Memory: true})
	require.NoError(t, err)
	defer app.Close()

	assert.IsType(t, &memory.Store{}, app.Env.Managers)
	assert.Equal(t, []string{"property"}, app.Tree.Strings("product/csv/processors", nil))
	require.NoError(t, app.Importer().Validate("product", "csv"))
	assert.Equal(t, 1, app.Service().Limiter().Available())

	families, err := app.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestOpen_MissingConfigFile(t *testing.T) {
	_, err := Open(context.Background(), testConfig(filepath.Join(t.TempDir(), "missing.yaml")), Options{})
	assert.ErrorContains(t, err, "read import config")
}

func TestRedis_NotConfigured(t *testing.T) {
	app, err := Open(context.Background(), testConfig(writeImportConfig(t, "")), Options{})
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Redis(context.Background())
	assert.ErrorIs(t, err, ErrNoQueue)
}
