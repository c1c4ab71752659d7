package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness. main flips it off when shutdown begins so load
// balancers drain the instance before the listener closes.
func SetReady(v bool) { ready.Store(v) }

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
	PingBackend(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker        Checker
	RedisTimeout   time.Duration
	BackendTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes Redis and the booking API in parallel.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ready.Load() {
		writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	var redisErr, backendErr error
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		redisErr = h.Checker.PingRedis(ctx, orDefault(h.RedisTimeout, 300*time.Millisecond))
		return nil
	})
	g.Go(func() error {
		backendErr = h.Checker.PingBackend(ctx, orDefault(h.BackendTimeout, 2*time.Second))
		return nil
	})
	_ = g.Wait()

	status := map[string]string{"redis": probeStatus(redisErr), "backend": probeStatus(backendErr)}
	code := http.StatusOK
	if redisErr != nil || backendErr != nil {
		code = http.StatusServiceUnavailable
	}
	writeStatus(w, code, status)
}

func probeStatus(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func writeStatus(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
