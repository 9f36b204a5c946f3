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
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsFilled(t *testing.T) {
	p := writeConfig(t, `
jwt:
  secret: s3cret
`)
	c, err := load(p)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", c.JWT.Secret)
	assert.Equal(t, 60, c.JWT.AccessTokenTTLMin)
	assert.Equal(t, 8080, c.App.HTTP.Port)
	assert.Equal(t, "sqlite", c.DB.Driver)
	assert.Equal(t, int64(300), c.Limits.MaxConcurrent)
	assert.Equal(t, 60, c.Redis.TTLSec)
	assert.Equal(t, "user", c.NATS.SubjectPrefix)
}

func TestLoad_FileValuesWin(t *testing.T) {
	p := writeConfig(t, `
app:
  http:
    port: 9090
jwt:
  secret: abc
  accessTokenTTLMin: 5
db:
  driver: postgres
  dsn: postgres://u:p@localhost:5432/users
redis:
  addr: localhost:6379
`)
	c, err := load(p)
	require.NoError(t, err)

	assert.Equal(t, 9090, c.App.HTTP.Port)
	assert.Equal(t, 5, c.JWT.AccessTokenTTLMin)
	assert.Equal(t, "postgres", c.DB.Driver)
	assert.Equal(t, "localhost:6379", c.Redis.Addr)
}

func TestLoad_EnvOverride(t *testing.T) {
	p := writeConfig(t, `
jwt:
  secret: from-file
`)
	t.Setenv("APP_JWT_SECRET", "from-env")

	c, err := load(p)
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.JWT.Secret)
}

func TestLoad_MissingSecret(t *testing.T) {
	p := writeConfig(t, `
app:
  name: x
`)
	_, err := load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
