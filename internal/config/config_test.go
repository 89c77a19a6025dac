package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ordersync/internal/engine"
)

const fullYAML = `
server:
  base_url: https://pedidos.example.com
  token: abc123
  timeout: 5s
channel:
  url: wss://pedidos.example.com/ws
  topic: /topic/admin/pedidos
  min_backoff: 500ms
  max_backoff: 1m
  heartbeat_interval: 5s
  heartbeat_timeout: 15s
snapshot:
  refresh_interval: 2m
  delete_policy: soft
journal:
  path: /var/lib/ordersync/journal.db
console:
  listen: ":9090"
`

func TestParse_Full(t *testing.T) {
	f, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	st, err := f.Settings()
	require.NoError(t, err)
	assert.Equal(t, "https://pedidos.example.com", st.BaseURL)
	assert.Equal(t, "abc123", st.Token)
	assert.Equal(t, 5*time.Second, st.RequestTimeout)
	assert.Equal(t, "wss://pedidos.example.com/ws", st.ChannelURL)
	assert.Equal(t, 500*time.Millisecond, st.Channel.MinBackoff)
	assert.Equal(t, time.Minute, st.Channel.MaxBackoff)
	assert.Equal(t, 15*time.Second, st.Channel.HeartbeatTimeout)
	assert.Equal(t, 2*time.Minute, st.RefreshInterval)
	assert.Equal(t, engine.DeleteSoft, st.DeletePolicy)
	assert.Equal(t, "/var/lib/ordersync/journal.db", st.JournalPath)
	assert.Equal(t, ":9090", st.ConsoleListen)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	f, err := Parse([]byte("server:\n  base_url: http://10.0.0.5:8080\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:8080", f.Server.BaseURL)
	assert.Equal(t, "10s", f.Server.Timeout)
	assert.Equal(t, Default().Channel, f.Channel)
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), f)

	st, err := f.Settings()
	require.NoError(t, err)
	assert.Equal(t, engine.DeleteNever, st.DeletePolicy)
	assert.Equal(t, 200*time.Millisecond, st.Channel.MinBackoff)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "server:\n  bogus: 1\n", "bogus"},
		{"bad duration", "channel:\n  min_backoff: soon\n", "min_backoff"},
		{"numeric duration", "server:\n  timeout: 10\n", "timeout"},
		{"bad policy", "snapshot:\n  delete_policy: hard\n", "delete_policy"},
		{"bad url scheme", "channel:\n  url: http://localhost/ws\n", "url"},
		{"topic without slash", "channel:\n  topic: orders\n", "topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "invalid yaml")
}

func TestSettings_CrossFieldRules(t *testing.T) {
	f := Default()
	f.Channel.MinBackoff = "10s"
	f.Channel.MaxBackoff = "1s"
	_, err := f.Settings()
	assert.ErrorContains(t, err, "channel.max_backoff")

	f = Default()
	f.Channel.HeartbeatTimeout = "5s"
	_, err = f.Settings()
	assert.ErrorContains(t, err, "channel.heartbeat_timeout")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordersync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullYAML), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", f.Console.Listen)

	f, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), f)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
