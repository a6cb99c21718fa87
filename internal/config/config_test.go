package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.APIID)
	assert.Equal(t, "", cfg.APIHash)

	// the skeleton must exist on disk so the user has something to fill in
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	in := &Config{
		APIID:   12345,
		APIHash: "abcdef",
		Proxy: Proxy{
			Type:   "socks5",
			Server: "127.0.0.1",
			Port:   1080,
		},
	}
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestProxy_Enabled(t *testing.T) {
	assert.False(t, Proxy{}.Enabled())
	assert.True(t, Proxy{Type: "socks5", Server: "127.0.0.1", Port: 1080}.Enabled())
}

func TestProxy_Addr(t *testing.T) {
	p := Proxy{Server: "proxy.example.com", Port: 443}
	assert.Equal(t, "proxy.example.com:443", p.Addr())
}

func TestPromptCredentials(t *testing.T) {
	in := strings.NewReader("12345\n  abcdef0123  \n")
	var out bytes.Buffer

	var cfg Config
	require.NoError(t, PromptCredentials(in, &out, &cfg))

	assert.Equal(t, 12345, cfg.APIID)
	assert.Equal(t, "abcdef0123", cfg.APIHash)
}

func TestPromptCredentials_InvalidID(t *testing.T) {
	in := strings.NewReader("not-a-number\n")
	var cfg Config

	err := PromptCredentials(in, &bytes.Buffer{}, &cfg)
	assert.Error(t, err)
}

func TestLoadSettings_Defaults(t *testing.T) {
	for _, key := range []string{"CONFIG_FILE", "RULES_FILE", "SESSION_FILE", "LOG_LEVEL", "LOG_FILE"} {
		os.Unsetenv(key)
	}

	s := LoadSettings()
	assert.Equal(t, "config.json", s.ConfigFile)
	assert.Equal(t, "forwarding_rules.json", s.RulesFile)
	assert.Equal(t, "telegram_session.db", s.SessionFile)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "", s.LogFile)
}

func TestLoadSettings_FromEnv(t *testing.T) {
	t.Setenv("RULES_FILE", "/custom/rules.json")
	t.Setenv("LOG_LEVEL", "debug")

	s := LoadSettings()
	assert.Equal(t, "/custom/rules.json", s.RulesFile)
	assert.Equal(t, "debug", s.LogLevel)
}
