package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Checker verifies that an infrastructure dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

type HealthResult struct {
	Status     string `json:"status" enum:"ok,error"`
	DurationMs int64  `json:"durationMs"`
}

// HealthResponse maps each dependency name to its result.
type HealthResponse map[string]HealthResult

func handleHealth(logger *slog.Logger, checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		results := make(HealthResponse, len(checks))
		status := http.StatusOK

		for name, c := range checks {
			start := time.Now()
			err := c.Check(ctx)
			res := HealthResult{Status: "ok", DurationMs: time.Since(start).Milliseconds()}
			if err != nil {
				logger.Error("health check failed", "name", name, "error", err)
				res.Status = "error"
				status = http.StatusServiceUnavailable
			}
			results[name] = res
		}

		writeJSON(w, status, results)
	}
}
