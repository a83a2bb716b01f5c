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
	t.Setenv("LABCLIENT_CONFIG", "")
	t.Setenv("API_BASE_URL", "")
	t.Setenv("PUSH_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", cfg.APIBaseURL)
	assert.Equal(t, "ws://localhost:5000/ws", cfg.PushURL)
	assert.Equal(t, 10, cfg.PushMaxAttempts)
	assert.Equal(t, time.Second, cfg.PushReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.PushReconnectDelayMax)
	assert.Equal(t, time.Minute, cfg.PushPongWait)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labclient.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_base_url = "https://labs.example.edu/api/"
listen_addr = "127.0.0.1:9999"
cors_origins = ["http://localhost:3000"]
http_timeout = "3s"
push_max_attempts = 4
push_reconnect_delay = "500ms"
push_pong_wait = "20s"
log_retention_days = 30
`), 0o644))
	t.Setenv("LABCLIENT_CONFIG", path)
	t.Setenv("PUSH_URL", "")
	t.Setenv("API_BASE_URL", "")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:7000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://labs.example.edu/api", cfg.APIBaseURL)
	assert.Equal(t, "wss://labs.example.edu/ws", cfg.PushURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddr, "environment wins over the file")
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CorsOrigins)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 4, cfg.PushMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.PushReconnectDelay)
	assert.Equal(t, 20*time.Second, cfg.PushPongWait)
	assert.Equal(t, 7, cfg.LogRetentionDays, "retention is capped at a week")
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labclient.toml")
	require.NoError(t, os.WriteFile(path, []byte(`http_timeout = "soon"`), 0o644))
	t.Setenv("LABCLIENT_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("LABCLIENT_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestDerivePushURL(t *testing.T) {
	testCases := []struct {
		base string
		want string
		err  bool
	}{
		{"http://localhost:5000/api", "ws://localhost:5000/ws", false},
		{"https://labs.example.edu/api?x=1", "wss://labs.example.edu/ws", false},
		{"ftp://labs.example.edu/api", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.base, func(t *testing.T) {
			got, err := DerivePushURL(tc.base)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
