package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbed/docbed/engine/vectordb"
	"github.com/docbed/docbed/pkg/config"
)

func TestLoad(t *testing.T) {
	t.Run("Should load defaults without a file", func(t *testing.T) {
		cfg, err := config.Load("")
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "docbed", cfg.Database.DBName)
		assert.Equal(t, "localhost:7233", cfg.Temporal.HostPort)
		assert.Equal(t, "docbed-queue", cfg.Temporal.TaskQueue)
		assert.Equal(t, vectordb.ProviderNone, cfg.VectorDB.Provider)
		assert.Positive(t, cfg.Split.ChunkSize)
	})
	t.Run("Should overlay file values on the defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "docbed.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
  signing_key: abc
database:
  host: db.internal
vectordb:
  provider: qdrant
  url: http://qdrant:6333
`), 0o644))
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "abc", cfg.Server.SigningKey)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, vectordb.ProviderQdrant, cfg.VectorDB.Provider)
		assert.Equal(t, "http://qdrant:6333", cfg.VectorDB.URL)
		assert.Equal(t, "docbed", cfg.Database.DBName)
	})
	t.Run("Should let the environment win over the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "docbed.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644))
		t.Setenv("DOCBED_SERVER_PORT", "9090")
		t.Setenv("DOCBED_DATABASE_CONN_STRING", "postgres://env/docbed")
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "postgres://env/docbed", cfg.Database.ConnString)
	})
	t.Run("Should fail on a missing explicit file", func(t *testing.T) {
		_, err := config.Load("/nonexistent/docbed.yaml")
		assert.Error(t, err)
	})
}
