package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heistarena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9090"
room:
  ticks_per_second: 30
  map:
    player_spawns:
      - position: {x: 1, y: 0, z: 2}
        yaw: 45
journal:
  path: /tmp/journal.db
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 30, cfg.Room.TicksPerSecond)
	require.Len(t, cfg.Room.Map.PlayerSpawns, 1)
	assert.Equal(t, Transform{Position: Vec3{X: 1, Z: 2}, Yaw: 45}, cfg.Room.Map.PlayerSpawns[0])
	assert.Equal(t, "/tmp/journal.db", cfg.Journal.Path)
	// 未出现的字段保持默认
	assert.Equal(t, 100.0, cfg.Room.Map.NPCMaxHealth)
	assert.Len(t, cfg.Room.Map.NPCSpawns, 2)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "room:\n  ticks_per_second: 0\n"))
	assert.ErrorContains(t, err, "ticks_per_second")

	_, err = LoadConfig(writeConfig(t, "room: [not, a, map]\n"))
	assert.ErrorContains(t, err, "parsing config")
}

func TestTickInterval(t *testing.T) {
	assert.Equal(t, 50*time.Millisecond, TickInterval(20))
	assert.Equal(t, 50*time.Millisecond, TickInterval(0))
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)

	log, err := NewLogger(LogConfig{Level: "info", File: filepath.Join(t.TempDir(), "app.log")})
	require.NoError(t, err)
	log.Info("hello")
	SyncLogger(log)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("HEISTARENA_LISTEN_ADDR", ":7070")
	t.Setenv("HEISTARENA_TICKS_PER_SECOND", "60")
	t.Setenv("HEISTARENA_LOBBY_ENABLED", "false")

	cfg, err := LoadConfig(writeConfig(t, "listen_addr: \":9090\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, 60, cfg.Room.TicksPerSecond)
	assert.False(t, cfg.Lobby.Enabled)
	assert.Equal(t, 4, cfg.Lobby.MaxMembers)
}
