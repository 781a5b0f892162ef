package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `{
  "version": "v1",
  "front": {
    "baseURL": "https://try.example",
    "addr": ":8080",
    "name": "trybuy-front",
    "defaultPath": "/catalogue/",
    "callbackPath": "/try/callback",
    "blockedReturnPaths": ["/try/callback", "/signup"],
    "allowedOrigins": ["https://catalogue.example"],
    "stateSigningSecret": {"$env": "TEST_STATE_SECRET"},
    "sessions": {"storage": "memory", "timeout": "24h", "cleanupInterval": "1h"},
    "admin": {"enabled": true, "username": "ops", "password": {"$env": "TEST_ADMIN_PASSWORD"}}
  },
  "idp": {
    "authorizationUrl": "https://identity.example/authorize",
    "clientId": {"$env": "TEST_CLIENT_ID"},
    "redirectUrl": "https://try.example/try/callback",
    "scopes": ["trial"]
  },
  "api": {
    "baseURL": "https://api.example",
    "timeout": "10s",
    "statusPath": "/v1/trial/status",
    "profilePath": "/v1/trial/profile"
  },
  "tokenValidation": {"enabled": true, "grace": "30s"}
}`

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TEST_STATE_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TEST_ADMIN_PASSWORD", "hunter2hunter2")
	t.Setenv("TEST_CLIENT_ID", "trial-client")
}

func TestLoadValidConfig(t *testing.T) {
	setTestEnv(t)
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://try.example", cfg.Front.BaseURL)
	assert.Equal(t, ":8080", cfg.Front.Addr)
	assert.Equal(t, "/catalogue/", cfg.Front.DefaultPath)
	assert.Equal(t, Secret("0123456789abcdef0123456789abcdef"), cfg.Front.StateSigningSecret)
	assert.Equal(t, []string{"/try/callback", "/signup"}, cfg.Front.BlockedReturnPaths)
	assert.Equal(t, []string{"https://catalogue.example"}, cfg.Front.AllowedOrigins)

	require.NotNil(t, cfg.Front.Sessions)
	assert.Equal(t, StorageMemory, cfg.Front.Sessions.Storage)
	assert.Equal(t, 24*time.Hour, cfg.Front.Sessions.Timeout)
	assert.Equal(t, time.Hour, cfg.Front.Sessions.CleanupInterval)

	require.NotNil(t, cfg.Front.Admin)
	assert.True(t, cfg.Front.Admin.Enabled)
	assert.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(string(cfg.Front.Admin.HashedPassword)), []byte("hunter2hunter2")))

	assert.Equal(t, "trial-client", cfg.IdP.ClientID)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)

	require.NotNil(t, cfg.TokenValidation)
	assert.True(t, cfg.TokenValidation.Enabled)
	assert.Equal(t, 30*time.Second, cfg.TokenValidation.Grace)
}

func TestLoadRejectsPlaintextSecret(t *testing.T) {
	setTestEnv(t)
	path := writeConfig(t, `{
  "version": "v1",
  "front": {
    "baseURL": "https://try.example",
    "addr": ":8080",
    "defaultPath": "/catalogue/",
    "callbackPath": "/try/callback",
    "stateSigningSecret": "plaintext-secret-plaintext-secret"
  },
  "idp": {"authorizationUrl": "https://identity.example/authorize", "clientId": "c", "redirectUrl": "https://try.example/try/callback"},
  "api": {"baseURL": "https://api.example"}
}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment variable reference")
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	setTestEnv(t)
	path := writeConfig(t, `{"version": "v99", "front": {}, "idp": {}, "api": {}}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config version")
}

func TestLoadRequiresVersion(t *testing.T) {
	path := writeConfig(t, `{"front": {}, "idp": {}, "api": {}}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version is required")
}

func TestLoadFailsOnMissingEnvVar(t *testing.T) {
	t.Setenv("TEST_ADMIN_PASSWORD", "x")
	t.Setenv("TEST_CLIENT_ID", "x")
	// TEST_STATE_SECRET deliberately unset
	os.Unsetenv("TEST_STATE_SECRET")
	path := writeConfig(t, validConfig)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_STATE_SECRET")
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		return &Config{
			Front: FrontConfig{
				BaseURL:            "https://try.example",
				Addr:               ":8080",
				DefaultPath:        "/catalogue/",
				CallbackPath:       "/try/callback",
				StateSigningSecret: "0123456789abcdef0123456789abcdef",
			},
			IdP: IdPConfig{
				AuthorizationURL: "https://identity.example/authorize",
				ClientID:         "c",
				RedirectURL:      "https://try.example/try/callback",
			},
			API: APIConfig{BaseURL: "https://api.example"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing baseURL", func(c *Config) { c.Front.BaseURL = "" }, "front.baseURL"},
		{"missing addr", func(c *Config) { c.Front.Addr = "" }, "front.addr"},
		{"absolute default path", func(c *Config) { c.Front.DefaultPath = "https://x" }, "relative path"},
		{"short signing secret", func(c *Config) { c.Front.StateSigningSecret = "short" }, "stateSigningSecret"},
		{"firestore without project", func(c *Config) {
			c.Front.Sessions = &SessionsConfig{Storage: StorageFirestore}
		}, "gcpProject"},
		{"unknown storage", func(c *Config) {
			c.Front.Sessions = &SessionsConfig{Storage: "redis"}
		}, "memory or firestore"},
		{"admin enabled without password", func(c *Config) {
			c.Front.Admin = &AdminConfig{Enabled: true, Username: "ops"}
		}, "admin.password"},
		{"missing idp url", func(c *Config) { c.IdP.AuthorizationURL = "" }, "authorizationUrl"},
		{"missing api baseURL", func(c *Config) { c.API.BaseURL = "" }, "api.baseURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	assert.Equal(t, "***", Secret("super-secret").String())
	assert.Equal(t, "", Secret("").String())

	data, err := Secret("super-secret").MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"***"`, string(data))
}
