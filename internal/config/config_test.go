package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPath_AppliesObservedDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("env: local\n"), 0o600))

	cfg, err := LoadPath(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 20, cfg.Matching.Window)
	assert.Equal(t, 30*time.Second, cfg.Matching.LockTTL)
	assert.Equal(t, 30*time.Minute, cfg.Matching.PairingTTL)
	assert.Equal(t, 10*time.Minute, cfg.Queue.MaxWait)
	assert.Equal(t, 2*time.Minute, cfg.Queue.InactivityThreshold)
	assert.Equal(t, 90*time.Second, cfg.Session.Duration)
	assert.Equal(t, 25, cfg.Points.Vibe)
	assert.Equal(t, 50, cfg.Points.MutualVibe)
	assert.Equal(t, 10, cfg.Points.Skip)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.WebRTC.STUNServers)
	assert.NotEmpty(t, cfg.Rooms.TokenSecret)
}

func TestLoadPath_OverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "env: prod\nmatching:\n  window: 8\n  lock_ttl: 5s\nsession:\n  duration: 2m\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadPath(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, 8, cfg.Matching.Window)
	assert.Equal(t, 5*time.Second, cfg.Matching.LockTTL)
	assert.Equal(t, 2*time.Minute, cfg.Session.Duration)
	assert.Empty(t, cfg.Rooms.TokenSecret)
}

func TestLoadPath_MissingFile(t *testing.T) {
	_, err := LoadPath(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
