package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STREAK_TIMEZONE", "Europe/Berlin")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Streakboard", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "file://migrations", cfg.Database.MigrationsPath)
	assert.Equal(t, LockBackendMemory, cfg.Lock.Backend)
	assert.Equal(t, 10*time.Second, cfg.Lock.TTL)
	assert.Equal(t, 0, cfg.Metrics.Port)

	loc, err := cfg.Streak.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"default jwt secret", map[string]string{"JWT_SECRET": "your-super-secret-jwt-key"}},
		{"unknown timezone", map[string]string{"JWT_SECRET": "s", "STREAK_TIMEZONE": "Mars/Olympus"}},
		{"redis lock without redis", map[string]string{"JWT_SECRET": "s", "LOCK_BACKEND": "redis", "REDIS_ENABLED": "false"}},
		{"unknown lock backend", map[string]string{"JWT_SECRET": "s", "LOCK_BACKEND": "etcd"}},
		{"zero lock ttl", map[string]string{"JWT_SECRET": "s", "LOCK_TTL": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_RedisLock(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", "cache")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", cfg.Redis.GetAddr())
}

func TestStreakLocation(t *testing.T) {
	for _, tz := range []string{"", "Local"} {
		loc, err := (&StreakConfig{Timezone: tz}).Location()
		require.NoError(t, err)
		assert.Equal(t, time.Local, loc)
	}
}
