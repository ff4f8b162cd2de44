package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  port: 9090
  readTimeout: 5s
database:
  driver: mysql
  host: db.internal
  user: safeguard
  password: "file-secret"
  name: safeguard
provider:
  model: gpt-4o
  timeout: 10s
analysis:
  maxConcurrentSessions: 8
auth:
  apiKeys:
    school-a: key-a
`

func TestParse_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SAFEGUARD_DB_PASSWORD", "env-secret")
	t.Setenv("SAFEGUARD_TOKEN_KEY", "master")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "sk-env", cfg.Provider.APIKey)
	assert.Equal(t, "env-secret", cfg.Database.Password)
	assert.Equal(t, "master", cfg.Tokenizer.MasterKey)
	assert.Equal(t, 30, cfg.Analysis.LookbackDays)
	assert.Equal(t, 30*24*time.Hour, cfg.Analysis.Lookback())
	assert.Equal(t, 8, cfg.Analysis.MaxConcurrentSessions)
	assert.Equal(t, map[string]string{"school-a": "key-a"}, cfg.Auth.APIKeys)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"port":     "server: {port: 70000}",
		"driver":   "database: {driver: oracle}",
		"db host":  "database: {driver: postgres}",
		"minio":    "minio: {enabled: true, endpoint: ''}",
		"analysis": "analysis: {minFrequency: -1}",
		"yaml":     "server: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_EmptyDriverMeansNone(t *testing.T) {
	cfg, err := Parse([]byte("database: {driver: ''}"))
	require.NoError(t, err)
	assert.Equal(t, DriverNone, cfg.Database.Driver)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDSNs(t *testing.T) {
	cfg := Default()
	cfg.Database = DatabaseConfig{Host: "db", User: "u", Password: "p w'd", Name: "sg", SSLMode: "require"}

	m, err := mysql.ParseDSN(cfg.MySQLDSN())
	require.NoError(t, err)
	assert.Equal(t, "u", m.User)
	assert.Equal(t, "p w'd", m.Passwd)
	assert.Equal(t, "db:3306", m.Addr)
	assert.Equal(t, "sg", m.DBName)
	assert.True(t, m.ParseTime)
	assert.Equal(t, `host=db port=5432 user=u password='p w\'d' dbname=sg sslmode=require`, cfg.PostgresDSN())
}
