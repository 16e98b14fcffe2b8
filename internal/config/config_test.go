package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"coursehub.org/internal/auth"
)

const testSecret = "config-test-secret-0123456789abcdef0123"

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, EnvDevelopment, c.Env)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, ":9090", c.GRPCAddr)
	assert.Equal(t, DriverPostgres, c.DBDriver)
	assert.Equal(t, "coursehub", c.AuthIssuer)
	assert.Equal(t, "coursehub-clients", c.AuthAudience)
	assert.Equal(t, 8*time.Hour, c.TokenTTL)
	assert.Equal(t, bcrypt.DefaultCost, c.BcryptCost)
	assert.Equal(t, []string{"http://localhost:3000"}, c.CORSOrigins)
	assert.Empty(t, c.AuthSecret)
	assert.Empty(t, c.DBDSN)
}

func TestLoadRequiresSecretAndDSN(t *testing.T) {
	_, err := load([]string{"-env-file", ""}, envMap(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth secret is required")
	assert.Contains(t, err.Error(), "database DSN is required")
}

func TestLoadFromEnvironment(t *testing.T) {
	cfg, err := load([]string{"-env-file", ""}, envMap(map[string]string{
		"COURSEHUB_ENV":            "production",
		"COURSEHUB_DB_DSN":         "postgres://u:p@db/coursehub",
		"COURSEHUB_AUTH_SECRET":    "s3cr3t-0123456789abcdef0123456789abcd",
		"COURSEHUB_AUTH_ISSUER":    "issuer-x",
		"COURSEHUB_AUTH_AUDIENCE":  "aud-y",
		"COURSEHUB_AUTH_TOKEN_TTL": "90m",
		"COURSEHUB_CORS_ORIGINS":   "https://a.example, https://b.example ,",
		"COURSEHUB_RATE_BURST":     "5",
		"COURSEHUB_BCRYPT_COST":    "4",
	}))
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Env)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "postgres://u:p@db/coursehub", cfg.DBDSN)
	assert.Equal(t, "s3cr3t-0123456789abcdef0123456789abcd", cfg.AuthSecret)
	assert.Equal(t, "issuer-x", cfg.AuthIssuer)
	assert.Equal(t, "aud-y", cfg.AuthAudience)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 5, cfg.RateBurst)
	assert.Equal(t, 4, cfg.BcryptCost)
}

func TestLoadEnvFileIsOverriddenByEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := "COURSEHUB_AUTH_SECRET=from-file-0123456789abcdef0123456789ab\nCOURSEHUB_DB_DSN=file.db\nCOURSEHUB_DB_DRIVER=sqlite\nCOURSEHUB_HTTP_ADDR=:7000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := load(
		[]string{"-env-file", path, "-http", ":7777"},
		envMap(map[string]string{"COURSEHUB_AUTH_SECRET": "from-env-0123456789abcdef0123456789abc"}),
	)
	require.NoError(t, err)

	assert.Equal(t, "from-env-0123456789abcdef0123456789abc", cfg.AuthSecret, "process env wins over the dotenv file")
	assert.Equal(t, "file.db", cfg.DBDSN)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, ":7777", cfg.HTTPAddr, "explicit flag wins over everything")
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	cfg, err := load(
		[]string{"-env-file", filepath.Join(t.TempDir(), "absent.env"), "-dsn", "x", "-db-driver", "sqlite"},
		envMap(map[string]string{"COURSEHUB_AUTH_SECRET": testSecret}),
	)
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.DBDSN)
}

func TestLoadRejectsBadValues(t *testing.T) {
	base := map[string]string{"COURSEHUB_AUTH_SECRET": testSecret, "COURSEHUB_DB_DSN": "d"}

	withTTL := map[string]string{"COURSEHUB_AUTH_TOKEN_TTL": "soon"}
	for k, v := range base {
		withTTL[k] = v
	}
	_, err := load([]string{"-env-file", ""}, envMap(withTTL))
	require.Error(t, err)

	_, err = load([]string{"-env-file", "", "-db-driver", "mysql"}, envMap(base))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")

	_, err = load([]string{"-unknown"}, envMap(base))
	require.Error(t, err)
}

func TestLoadRejectsWeakTokenSettings(t *testing.T) {
	_, err := load([]string{"-env-file", ""}, envMap(map[string]string{
		"COURSEHUB_AUTH_SECRET": "k",
		"COURSEHUB_DB_DSN":      "d",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth secret must be at least")

	_, err = load([]string{"-env-file", ""}, envMap(map[string]string{
		"COURSEHUB_AUTH_SECRET":    testSecret,
		"COURSEHUB_DB_DSN":         "d",
		"COURSEHUB_AUTH_TOKEN_TTL": "1s",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token ttl must be at least")

	cfg, err := load([]string{"-env-file", ""}, envMap(map[string]string{
		"COURSEHUB_AUTH_SECRET":    testSecret,
		"COURSEHUB_DB_DSN":         "d",
		"COURSEHUB_AUTH_TOKEN_TTL": auth.MinTokenTTL.String(),
	}))
	require.NoError(t, err)
	_, err = auth.NewTokenService(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthAudience, cfg.TokenTTL)
	require.NoError(t, err, "a valid config must build a token service")
}

func TestLoadTrustedProxies(t *testing.T) {
	cfg, err := load([]string{"-env-file", ""}, envMap(map[string]string{
		"COURSEHUB_AUTH_SECRET":     testSecret,
		"COURSEHUB_DB_DSN":          "d",
		"COURSEHUB_TRUSTED_PROXIES": "10.0.0.0/8, 192.168.1.7",
	}))
	require.NoError(t, err)
	require.Len(t, cfg.TrustedProxies, 2)
	assert.Equal(t, "10.0.0.0/8", cfg.TrustedProxies[0].String())
	assert.Equal(t, "192.168.1.7/32", cfg.TrustedProxies[1].String())
	assert.Empty(t, new(Config).TrustedProxies)

	_, err = load([]string{"-env-file", ""}, envMap(map[string]string{
		"COURSEHUB_AUTH_SECRET":     testSecret,
		"COURSEHUB_DB_DSN":          "d",
		"COURSEHUB_TRUSTED_PROXIES": "not-an-ip",
	}))
	require.Error(t, err)
}
