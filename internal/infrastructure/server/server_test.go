package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streakboard/core/internal/application/services"
	"github.com/streakboard/core/internal/infrastructure/config"
	"github.com/streakboard/core/internal/infrastructure/database"
	"github.com/streakboard/core/internal/infrastructure/logger"
)

var taskColumns = []string{
	"id", "owner_id", "title", "description", "completed_dates", "streak_current",
	"streak_max", "streak_last", "created_at", "updated_at", "version",
}

func testConfig() *config.Config {
	return &config.Config{
		App:    config.AppConfig{Name: "Streakboard", Version: "test", Environment: "test"},
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, RequestTimeout: 5 * time.Second},
		JWT: config.JWTConfig{
			Secret:           "server-test-secret",
			ExpiresIn:        time.Hour,
			RefreshExpiresIn: 24 * time.Hour,
			Issuer:           "streakboard-test",
		},
		Security: config.SecurityConfig{CORSAllowedOrigins: "*", RateLimitRequests: 1000, RateLimitWindow: time.Minute},
		Metrics:  config.MetricsConfig{Enabled: true},
		Streak:   config.StreakConfig{Timezone: "UTC"},
		Lock:     config.LockConfig{Backend: config.LockBackendMemory, TTL: time.Second, Wait: time.Second},
	}
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "postgres")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	srv, err := New(testConfig(), database.Wrap(db), nil, logger.NewNop())
	require.NoError(t, err)
	return srv, mock
}

func accessToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID) string {
	t.Helper()
	claims := &services.Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)
	return token
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew_RedisLockRequiresClient(t *testing.T) {
	cfg := testConfig()
	cfg.Lock.Backend = config.LockBackendRedis

	_, err := New(cfg, database.Wrap(nil), nil, logger.NewNop())
	assert.Error(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	srv, mock := newTestServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	mock.ExpectPing()
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database_not_ready")

	mock.ExpectPing()
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lock":"memory"`)
}

func TestErrorBodies(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Missing authorization header"}`, rec.Body.String())

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Not Found"}`, rec.Body.String())
}

func TestCompleteTask_EndToEnd(t *testing.T) {
	srv, mock := newTestServer(t)
	owner, taskID := uuid.New(), uuid.New()
	token := accessToken(t, srv.config.JWT, owner)
	created := time.Now().Add(-48 * time.Hour).UTC()

	complete := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/"+taskID.String()+"/complete", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return serve(srv, req)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(taskID, owner).
		WillReturnRows(sqlmock.NewRows(taskColumns).AddRow(
			taskID.String(), owner.String(), "Read", "20 pages", "{}", 0, 0, nil, created, created, 1,
		))
	mock.ExpectExec(regexp.QuoteMeta("SET completed_dates = $3")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := complete()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"streak_current":1`)
	assert.Contains(t, rec.Body.String(), `"completed_today":true`)

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(taskID, owner).
		WillReturnRows(sqlmock.NewRows(taskColumns).AddRow(
			taskID.String(), owner.String(), "Read", "20 pages",
			`{"`+now.Format("2006-01-02 15:04:05")+`+00"}`, 1, 1, today, created, now, 2,
		))
	mock.ExpectRollback()

	rec = complete()
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Task already completed today","code":"already_completed"}`, rec.Body.String())

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `streak_completions_total{outcome="completed"} 1`), body)
	assert.True(t, strings.Contains(body, `streak_completions_total{outcome="already_completed"} 1`), body)
	assert.Contains(t, body, `http_requests_total{method="POST",path="/api/v1/tasks/:id/complete",status="400"} 1`)
}
