package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 50, cfg.HistoryLimit)
	require.Equal(t, 100, cfg.DefaultCapacity)
	require.Equal(t, 30, cfg.RetentionDays)
	require.Equal(t, 10*time.Second, cfg.WriteTimeout)
	require.True(t, cfg.AllowGuests)
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "test-secret")
	t.Setenv("CHAT_HISTORY_LIMIT", "25")
	t.Setenv("CHAT_ROOM_CAPACITY", "10")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 25, cfg.HistoryLimit)
	require.Equal(t, 10, cfg.DefaultCapacity)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}
