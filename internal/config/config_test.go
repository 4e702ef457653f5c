// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, flag and env precedence, config files and validation
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperreed/roomcast-go/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir keeps a stray ./roomcast.yaml out of the test
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestPlayerDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := LoadPlayer(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, "r1", cfg.Room)
	assert.Equal(t, "Receiver", cfg.User)
	assert.Equal(t, audio.DefaultFormat(), cfg.Format())
	assert.Equal(t, 4, cfg.BufferFactor)
	assert.Equal(t, 32, cfg.QueueFrames)
	assert.Equal(t, "malgo", cfg.Output)
	assert.Equal(t, 100, cfg.Volume)
	assert.Equal(t, 2*time.Second, cfg.CloseTimeout)
	assert.Equal(t, time.Duration(0), cfg.DialTimeout)
	assert.Equal(t, "roomcast.log", cfg.LogFile)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.TUI)
	assert.True(t, cfg.AutoStart)
	assert.False(t, cfg.AutoEnable)
	assert.Empty(t, cfg.ConfigFileUse)
}

func TestPlayerFlags(t *testing.T) {
	inTempDir(t)

	cfg, err := LoadPlayer([]string{
		"--endpoint", "ws://localhost:8927",
		"--room", "kitchen",
		"--volume", "40",
		"--tui=false",
		"--close-timeout", "500ms",
		"--output", "oto",
	})
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8927", cfg.Endpoint)
	assert.Equal(t, "kitchen", cfg.Room)
	assert.Equal(t, 40, cfg.Volume)
	assert.False(t, cfg.TUI)
	assert.Equal(t, 500*time.Millisecond, cfg.CloseTimeout)
	assert.Equal(t, "oto", cfg.Output)
}

func TestPlayerEnvOverridesDefaults(t *testing.T) {
	inTempDir(t)
	t.Setenv("ROOMCAST_ROOM", "garage")
	t.Setenv("ROOMCAST_LOG_LEVEL", "debug")
	t.Setenv("ROOMCAST_QUEUE_FRAMES", "8")

	cfg, err := LoadPlayer(nil)
	require.NoError(t, err)

	assert.Equal(t, "garage", cfg.Room)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.QueueFrames)
}

func TestPlayerFlagBeatsEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("ROOMCAST_USER", "from-env")

	cfg, err := LoadPlayer([]string{"--user", "from-flag"})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.User)
}

func TestPlayerConfigFile(t *testing.T) {
	dir := inTempDir(t)
	content := "room: attic\nuser: Speaker\nbuffer_factor: 6\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roomcast.yaml"), []byte(content), 0o644))

	cfg, err := LoadPlayer(nil)
	require.NoError(t, err)

	assert.Equal(t, "attic", cfg.Room)
	assert.Equal(t, "Speaker", cfg.User)
	assert.Equal(t, 6, cfg.BufferFactor)
	assert.NotEmpty(t, cfg.ConfigFileUse)
}

func TestPlayerMissingExplicitConfigFile(t *testing.T) {
	inTempDir(t)

	_, err := LoadPlayer([]string{"--config", "does-not-exist.yaml"})
	assert.Error(t, err)
}

func TestPlayerValidation(t *testing.T) {
	inTempDir(t)

	tests := []struct {
		name string
		args []string
	}{
		{"volume too high", []string{"--volume", "101"}},
		{"24-bit", []string{"--bit-depth", "24"}},
		{"zero buffer factor", []string{"--buffer-factor", "0"}},
		{"zero queue", []string{"--queue-frames", "0"}},
		{"unknown flag", []string{"--nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPlayer(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestRelayDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := LoadRelay(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "r1", cfg.Room)
	assert.False(t, cfg.Tone)
	assert.Equal(t, 440, cfg.ToneHz)
	assert.True(t, cfg.MDNS)
	assert.Contains(t, cfg.Name, "-roomcast-relay")
	assert.Equal(t, int64(1<<20), cfg.ReadLimit)
}

func TestRelayFlags(t *testing.T) {
	inTempDir(t)

	cfg, err := LoadRelay([]string{"--port", "9000", "--tone", "--mdns=false", "--name", "test"})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.Tone)
	assert.False(t, cfg.MDNS)
	assert.Equal(t, "test", cfg.Name)

	_, err = LoadRelay([]string{"--port", "70000"})
	assert.Error(t, err)
}
