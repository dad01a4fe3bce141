// ABOUTME: Tests for configuration loading
// ABOUTME: Covers env expansion, duration parsing, and validation failures

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
server:
  http_addr: ":8080"
  public_url: "https://relay.example.com"
  shutdown_timeout: "15s"
database:
  path: "/tmp/relay.db"
twilio:
  account_sid: "AC123"
  auth_token: "token123"
  from_number: "+15550001111"
agent:
  api_key: "sk-test"
  model: "gpt-4o-mini"
  context_messages: 30
logging:
  level: "debug"
  format: "json"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "https://relay.example.com", cfg.Server.PublicURL)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/relay.db", cfg.Database.Path)
	assert.Equal(t, "AC123", cfg.Twilio.AccountSID)
	assert.Equal(t, "sk-test", cfg.Agent.APIKey)
	assert.Equal(t, 30, cfg.Agent.ContextMessages)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("RELAY_TEST_TOKEN", "expanded-token")
	path := writeConfig(t, `
server:
  http_addr: ":8080"
  public_url: "https://relay.example.com"
database:
  path: "/tmp/relay.db"
twilio:
  account_sid: "AC123"
  auth_token: "${RELAY_TEST_TOKEN}"
  from_number: "+15550001111"
agent:
  api_key: "sk-test"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-token", cfg.Twilio.AuthToken)
}

func TestLoad_DefaultShutdownTimeout(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
  public_url: "https://relay.example.com"
database:
  path: "/tmp/relay.db"
twilio:
  account_sid: "AC123"
  auth_token: "t"
  from_number: "+15550001111"
agent:
  api_key: "sk-test"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
  public_url: "https://relay.example.com"
  shutdown_timeout: "eleventy"
database:
  path: "/tmp/relay.db"
twilio:
  account_sid: "AC123"
  auth_token: "t"
  from_number: "+15550001111"
agent:
  api_key: "sk-test"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "shutdown_timeout")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing http_addr", func(c *Config) { c.Server.HTTPAddr = "" }, "http_addr"},
		{"missing public_url", func(c *Config) { c.Server.PublicURL = "" }, "public_url"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"missing account sid", func(c *Config) { c.Twilio.AccountSID = "" }, "account_sid"},
		{"missing auth token", func(c *Config) { c.Twilio.AuthToken = "" }, "auth_token"},
		{"missing from number", func(c *Config) { c.Twilio.FromNumber = "" }, "from_number"},
		{"missing agent api key", func(c *Config) { c.Agent.APIKey = "" }, "api_key"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Server:   ServerConfig{HTTPAddr: ":8080", PublicURL: "https://x"},
				Database: DatabaseConfig{Path: "/tmp/x.db"},
				Twilio:   TwilioConfig{AccountSID: "AC", AuthToken: "t", FromNumber: "+1555"},
				Agent:    AgentConfig{APIKey: "sk"},
			}
			tc.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorContains(t, err, tc.want)
		})
	}
}
