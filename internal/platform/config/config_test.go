package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "be-qc-inspections", cfg.Service.Name)
	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 9086, cfg.Server.GRPCPort)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, 4, cfg.Dispatcher.Workers)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
service:
  environment: production
server:
  port: 9000
  shutdown_timeout: 3s
storage:
  driver: badger
  badger_path: /var/lib/qc
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("QC_SERVER_PORT", "9100")
	t.Setenv("QC_DISPATCHER_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Service.Environment)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "badger", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/qc", cfg.Storage.BadgerPath)
	assert.Equal(t, 8, cfg.Dispatcher.Workers)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QC_STORAGE_DRIVER", "mongo")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, Database: "qc", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/qc?sslmode=disable", d.DSN())
}

func TestLoad_RosterRequiresAddrWhenEnabled(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QC_ROSTER_ENABLED", "true")
	t.Setenv("QC_ROSTER_ADDR", "orders:9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Roster.Enabled)
	assert.Equal(t, "orders:9090", cfg.Roster.Addr)
	assert.Equal(t, 5*time.Second, cfg.Roster.Timeout)
}
