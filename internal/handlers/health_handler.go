package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"digicop-backend/utils/response"
)

type Checker func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Checker
	log    *zap.SugaredLogger
}

func NewHealthHandler(checks map[string]Checker, log *zap.SugaredLogger) *HealthHandler {
	return &HealthHandler{checks: checks, log: log}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Readyz runs every dependency check and reports each failing one by name.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.log.With("check", name, "err", err).Warn("readiness check failed")
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		response.JSON(w, http.StatusServiceUnavailable, response.SuccessResponse{
			Success: false,
			Data:    failed,
			Message: "not ready",
		})
		return
	}
	response.Success(w, names, "ready")
}
