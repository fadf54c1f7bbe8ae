package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthCheck is one dependency probed by the readiness endpoint. A failing
// critical check makes the service unready; a failing optional one only
// degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

type HealthHandler struct {
	checks  []HealthCheck
	env     string
	version string
}

func NewHealthHandler(checks []HealthCheck, env, version string) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		deps   = make(map[string]string, len(h.checks))
		status = "ok"
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, check := range h.checks {
		g.Go(func() error {
			checkCtx, checkCancel := context.WithTimeout(gctx, time.Second)
			err := check.Ping(checkCtx)
			checkCancel()

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				deps[check.Name] = "ok"
				return nil
			}
			deps[check.Name] = "down"
			if check.Critical {
				status = "error"
			} else if status == "ok" {
				status = "degraded"
			}
			return nil
		})
	}
	_ = g.Wait()

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}
