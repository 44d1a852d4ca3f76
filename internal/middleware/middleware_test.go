package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandlerReportsFailingCheck(t *testing.T) {
	h := HealthHandler(map[string]HealthChecker{
		"database": PingChecker{Target: pingFunc(func(context.Context) error { return nil })},
		"storage":  PingChecker{Target: pingFunc(func(context.Context) error { return errors.New("bucket gone") })},
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var got HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "unhealthy", got.Status)
	assert.Equal(t, CheckStatus{Status: "healthy"}, got.Checks["database"])
	assert.Equal(t, CheckStatus{Status: "unhealthy", Message: "bucket gone"}, got.Checks["storage"])
}

func TestRateLimiterPerClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 0.001, 2)
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(addr, path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000", "/v1/analyses/x"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001", "/v1/analyses/x"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002", "/v1/analyses/x"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000", "/v1/analyses/x"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1003", "/health"))
}

func TestLoggingKeepsStatus(t *testing.T) {
	h := Logging(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

func TestValidateProjectName(t *testing.T) {
	assert.NoError(t, ValidateProjectName("Motor Controller_v2.1"))
	assert.Error(t, ValidateProjectName(" "))
	assert.Error(t, ValidateProjectName("a/b"))
	assert.Error(t, ValidateProjectName("x;rm"))
	assert.Equal(t, "board", SanitizeString(" bo\x00ard\n"))
}

func TestPagination(t *testing.T) {
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(1000))
	assert.Equal(t, 5, ValidateLimit(5))
	assert.Equal(t, 1, ValidatePage(-3))
	assert.Equal(t, 4, ValidatePage(4))
}
