package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
)

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	cfg, err := Load(write(t, `
server:
  port: 9090
  readTimeout: 5s
database:
  driver: mysql
  host: db
  port: 3306
  user: cam
  password: secret
  name: cam
rules:
  min_trace_width: 0.075
engine:
  workers: 8
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 64, cfg.Engine.QueueSize)
	assert.Equal(t, "local", cfg.Storage.Backend)

	want := camrules.Defaults()
	want.MinTraceWidth = 0.075
	assert.Equal(t, want, cfg.Rules)

	assert.Equal(t, "cam:secret@tcp(db:3306)/cam?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(write(t, "database:\n  driver: oracle\n"))
	assert.ErrorContains(t, err, "database.driver")

	_, err = Load(write(t, "storage:\n  backend: ftp\n"))
	assert.ErrorContains(t, err, "storage.backend")

	_, err = Load(write(t, "rules:\n  copper_imbalance_tolerance: 150\n"))
	assert.ErrorContains(t, err, "rules")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := Default()
	cfg.Database.Host = "pg"
	cfg.Database.Port = 5432
	cfg.Database.User = "cam"
	cfg.Database.Password = "p@ss"
	cfg.Database.Name = "cam"
	assert.Equal(t, "postgres://cam:p%40ss@pg:5432/cam?sslmode=disable", cfg.PostgresDSN())
}
