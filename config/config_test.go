package config

import (
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{"NODE_ID", "API_ADDR", "PEERS", "SYNC_INTERVAL", "SYNC_TIMEOUT", "LOG_LEVEL", "LOG_NO_COLOR", "DATA_DIR"}

// clearEnv makes sure variables set on the machine running the tests do not leak in.
func clearEnv(t *testing.T) {
	for _, key := range envKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "node1", config.NodeId)
	assert.Equal(t, "0.0.0.0:8080", config.ApiAddr)
	assert.Empty(t, config.Peers)
	assert.Equal(t, 5*time.Second, config.SyncInterval)
	assert.Equal(t, 5*time.Second, config.SyncTimeout)
	assert.Equal(t, "info", config.LogLevel)
	assert.False(t, config.LogNoColor)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("NODE_ID", "node2")
	t.Setenv("API_ADDR", "127.0.0.1:9090")
	t.Setenv("PEERS", "node1:8080, node3:8080,,")
	t.Setenv("SYNC_INTERVAL", "2s")
	t.Setenv("SYNC_TIMEOUT", "750ms")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_NO_COLOR", "true")
	t.Setenv("DATA_DIR", "/var/lib/securerx")

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "node2", config.NodeId)
	assert.Equal(t, "127.0.0.1:9090", config.ApiAddr)
	assert.Equal(t, []string{"node1:8080", "node3:8080"}, config.Peers)
	assert.Equal(t, 2*time.Second, config.SyncInterval)
	assert.Equal(t, 750*time.Millisecond, config.SyncTimeout)
	assert.Equal(t, "debug", config.LogLevel)
	assert.True(t, config.LogNoColor)
	assert.Equal(t, "/var/lib/securerx", config.DataDir)

	options, err := config.NodeOptions()
	require.NoError(t, err)
	assert.Equal(t, "node2", options.NodeId)
	assert.Equal(t, "127.0.0.1:9090", options.ApiAddr)
	assert.Equal(t, []string{"node1:8080", "node3:8080"}, options.Peers)
	assert.Equal(t, 2*time.Second, options.SyncInterval)
	assert.Equal(t, 750*time.Millisecond, options.SyncTimeout)
	assert.Equal(t, zerolog.DebugLevel, options.LogLevel)
	assert.True(t, options.LogNoColor)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "securerx.yaml"), []byte(`
node_id: node-from-file
peers:
  - node2:8080
  - http://node3:8080
sync_interval: 10s
log_level: warn
`), 0o600)
	require.NoError(t, err)

	config, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "node-from-file", config.NodeId)
	assert.Equal(t, []string{"node2:8080", "http://node3:8080"}, config.Peers)
	assert.Equal(t, 10*time.Second, config.SyncInterval)
	assert.Equal(t, 5*time.Second, config.SyncTimeout)
	assert.Equal(t, "warn", config.LogLevel)

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("NODE_ID", "node-from-env")
		config, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "node-from-env", config.NodeId)
	})

	t.Run("missing file", func(t *testing.T) {
		config, err := Load(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "node1", config.NodeId)
	})

	t.Run("broken file", func(t *testing.T) {
		broken := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(broken, "securerx.yaml"), []byte("peers: [unclosed"), 0o600))
		_, err := Load(broken)
		assert.ErrorIs(t, err, ErrorInvalidConfig)
	})
}

func TestConfig_NodeOptions(t *testing.T) {
	config := &Config{NodeId: "node1", ApiAddr: "0.0.0.0:8080", LogLevel: "TRACE"}
	options, err := config.NodeOptions()
	require.NoError(t, err)
	assert.Equal(t, zerolog.TraceLevel, options.LogLevel)

	config.LogLevel = "loud"
	_, err = config.NodeOptions()
	assert.ErrorIs(t, err, ErrorInvalidLogLevel)
}
