package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrDisabled marks an optional dependency that is not configured. It is
// reported but does not fail readiness.
var ErrDisabled = errors.New("disabled")

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingStore(ctx context.Context) error
	PingRedis(ctx context.Context) error
}

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips readiness; shutdown clears it so load balancers drain first.
func SetReady(v bool) { ready.Store(v) }

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker      Checker
	StoreTimeout time.Duration
	RedisTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if h.Checker == nil {
		writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "dependencies unavailable"})
		return
	}

	storeStatus := probe(r.Context(), h.storeTimeout(), h.Checker.PingStore)
	redisStatus := probe(r.Context(), h.redisTimeout(), h.Checker.PingRedis)
	status := map[string]string{
		"store": storeStatus,
		"redis": redisStatus,
	}
	code := http.StatusOK
	if storeStatus != "ok" || (redisStatus != "ok" && redisStatus != ErrDisabled.Error()) {
		code = http.StatusServiceUnavailable
	}
	writeStatus(w, code, status)
}

func probe(parent context.Context, timeout time.Duration, ping func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		if errors.Is(err, ErrDisabled) {
			return ErrDisabled.Error()
		}
		return err.Error()
	}
	return "ok"
}

func writeStatus(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func (h Handler) storeTimeout() time.Duration {
	if h.StoreTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.StoreTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
