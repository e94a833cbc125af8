package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/streakboard/core/internal/infrastructure/config"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestNew(t *testing.T) {
	l, err := New(config.LoggerConfig{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = New(config.LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	l, logs := observed()

	l.WithComponent("task_service").WithUserID("u1").WithTaskID("t1").WithError(errors.New("boom")).Info("done")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "task_service", fields["component"])
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, "t1", fields["task_id"])
	assert.Equal(t, "boom", fields["error"])
}

func TestLogUserActionAndSecurityEvent(t *testing.T) {
	l, logs := observed()

	l.LogUserAction("u1", "complete_task", map[string]interface{}{"streak_current": 3})
	l.LogSecurityEvent("invalid_token", "", "10.0.0.1", map[string]interface{}{"path": "/api/v1/tasks"})
	l.WithRequestID("req-1").LogHTTPRequest("GET", "/health", "curl", "10.0.0.1", 200, 1.5)

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "complete_task", entries[0].ContextMap()["action"])
	assert.EqualValues(t, 3, entries[0].ContextMap()["streak_current"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "invalid_token", entries[1].ContextMap()["security_event"])

	assert.Equal(t, "req-1", entries[2].ContextMap()["request_id"])
	assert.EqualValues(t, 200, entries[2].ContextMap()["status_code"])
}
