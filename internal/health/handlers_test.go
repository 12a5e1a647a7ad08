package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/health"
)

type stubChecker struct {
	storeErr error
	redisErr error
}

func (s stubChecker) PingStore(context.Context) error { return s.storeErr }
func (s stubChecker) PingRedis(context.Context) error { return s.redisErr }

type slowChecker struct{}

func (slowChecker) PingStore(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (slowChecker) PingRedis(context.Context) error { return nil }

func ready(t *testing.T, h health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	return rr.Code, status
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadySuccess(t *testing.T) {
	code, status := ready(t, health.Handler{Checker: stubChecker{}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"store": "ok", "redis": "ok"}, status)
}

func TestReadyRedisDisabled(t *testing.T) {
	code, status := ready(t, health.Handler{Checker: stubChecker{redisErr: health.ErrDisabled}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "disabled", status["redis"])
}

func TestReadyFailure(t *testing.T) {
	code, status := ready(t, health.Handler{Checker: stubChecker{storeErr: errors.New("store down")}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "store down", status["store"])

	code, _ = ready(t, health.Handler{Checker: stubChecker{redisErr: errors.New("redis down")}})
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyPingTimeout(t *testing.T) {
	code, status := ready(t, health.Handler{Checker: slowChecker{}, StoreTimeout: 10 * time.Millisecond})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, context.DeadlineExceeded.Error(), status["store"])
}

func TestReadyWithoutChecker(t *testing.T) {
	code, _ := ready(t, health.Handler{})
	require.Equal(t, http.StatusServiceUnavailable, code)
}
