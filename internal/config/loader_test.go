package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfigYAML = `
user_agent: eogate/test
breaker:
  enabled: true
  max_failures: 3
  open_timeout: 10s
providers:
  - name: planetary_computer
    auth:
      type: sas
      auth_uri: "https://pc.example.com/sign?href={url}"
      signed_url_key: href
      headers:
        Ocp-Apim-Subscription-Key: "{apikey}"
    credentials:
      apikey: ${PC_APIKEY:-}
  - name: cop_dataspace
    auth:
      type: oidc_password
      auth_base_uri: https://identity.example.com/auth
      realm: CDSE
      client_id: cdse-public
      client_secret: ${CDSE_SECRET:-public}
      token_provision: header
      timeout: 3s
    credentials:
      username: ${CDSE_USER}
      password: ${CDSE_PASSWORD:-changeme}
`

func TestLoadConfigFromReader(t *testing.T) {
	t.Setenv("CDSE_USER", "john")

	cfg, err := LoadConfigFromReader(strings.NewReader(sampleConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "eogate/test", cfg.GetEffectiveUserAgent())
	require.NotNil(t, cfg.Breaker)
	assert.True(t, cfg.Breaker.Enabled)
	assert.Equal(t, 3, cfg.Breaker.GetEffectiveMaxFailures())
	assert.Equal(t, 10*time.Second, cfg.Breaker.GetEffectiveOpenTimeout())

	require.Len(t, cfg.Providers, 2)

	sas := cfg.Providers[0]
	assert.Equal(t, SchemeSAS, sas.Auth.Type)
	assert.Equal(t, "{apikey}", sas.Auth.Headers["Ocp-Apim-Subscription-Key"])
	assert.Equal(t, "", sas.Credentials["apikey"])

	oidc, ok := cfg.Provider("cop_dataspace")
	require.True(t, ok)
	assert.Equal(t, "public", oidc.Auth.ClientSecret)
	assert.Equal(t, 3*time.Second, oidc.Auth.GetEffectiveTimeout())
	assert.Equal(t, "john", oidc.Credentials["username"])
	assert.Equal(t, "changeme", oidc.Credentials["password"])

	require.NoError(t, ValidateConfig(cfg))
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "eogate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  - name: a\n    auth:\n      type: token\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, SchemeToken, cfg.Providers[0].Auth.Type)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfigFromReader(strings.NewReader("providers: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("invalid duration", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfigFromReader(strings.NewReader("breaker:\n  open_timeout: forever\n"))
		assert.Error(t, err)
	})
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("EOGATE_TEST_SET", "value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "set variable", input: "${EOGATE_TEST_SET}", want: "value"},
		{name: "default used", input: "${EOGATE_TEST_UNSET:-fallback}", want: "fallback"},
		{name: "default ignored", input: "${EOGATE_TEST_SET:-fallback}", want: "value"},
		{name: "unset without default", input: "a${EOGATE_TEST_UNSET}b", want: "ab"},
		{name: "escaped dollar", input: "$${EOGATE_TEST_SET}", want: "${EOGATE_TEST_SET}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteEnvVars(tt.input))
		})
	}
}
