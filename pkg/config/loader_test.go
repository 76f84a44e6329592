package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadConfig_MergesEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: ":8080"
db:
  host: localhost
  port: 5432
pipeline:
  workers: 1
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
pipeline:
  workers: 8
`)

	cfg, err := LoadConfig("production", dir)
	require.NoError(t, err)

	db := cfg["db"].(map[string]interface{})
	assert.Equal(t, "db.internal", db["host"])
	assert.Equal(t, 5432, db["port"])
	assert.Equal(t, 8, cfg["pipeline"].(map[string]interface{})["workers"])
	assert.Equal(t, ":8080", cfg["server"].(map[string]interface{})["port"])
}

func TestLoadConfig_MissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	assert.Error(t, err)
}

func TestLoadConfig_SecretsPlaceholders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
jwt:
  secret: "${JWT_SIGNING_KEY}"
db:
  password: "${DB_PASS}"
`)
	writeFile(t, dir, "secrets.env", "# local secrets\nJWT_SIGNING_KEY='s3cret'\nDB_PASS=\"pw\"\n")

	cfg, err := LoadConfig("local", dir)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg["jwt"].(map[string]interface{})["secret"])
	assert.Equal(t, "pw", cfg["db"].(map[string]interface{})["password"])
}

func TestOverrideFromSystemEnv(t *testing.T) {
	env := map[string]string{
		"SOLARCRM_PIPELINE_WORKERS":       "4",
		"SOLARCRM_PIPELINE_WINDOW_POLICY": "empty",
		"SOLARCRM_CACHE_ENABLED":          "false",
	}
	cfg := map[string]interface{}{
		"pipeline": map[string]interface{}{"workers": 1, "window_policy": "reject"},
		"cache":    map[string]interface{}{"enabled": true},
	}

	out := overrideFromSystemEnv(cfg, "", func(k string) string { return env[k] })

	p := out["pipeline"].(map[string]interface{})
	assert.Equal(t, 4, p["workers"])
	assert.Equal(t, "empty", p["window_policy"])
	assert.Equal(t, false, out["cache"].(map[string]interface{})["enabled"])
	// 原配置不被修改
	assert.Equal(t, 1, cfg["pipeline"].(map[string]interface{})["workers"])
}

func TestDecode(t *testing.T) {
	var out struct {
		DB DBConfig `yaml:"db"`
	}
	err := Decode(map[string]interface{}{
		"db": map[string]interface{}{"host": "h", "port": 6543, "max_conns": 20},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "h", out.DB.Host)
	assert.Equal(t, 6543, out.DB.Port)
	assert.Equal(t, int32(20), out.DB.MaxConns)
}

func TestDBConfig_DSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "crm", Password: "pw", Name: "solar"}
	assert.Equal(t, "postgres://crm:pw@db:5432/solar?sslmode=disable", c.DSN())
	c.SSLMode = "require"
	assert.Equal(t, "postgres://crm:pw@db:5432/solar?sslmode=require", c.DSN())
}
